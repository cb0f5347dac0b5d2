package artifact_test

import (
	"errors"
	"strings"
	"testing"

	artifact "github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/artifact/artifacttest"
	"github.com/okian/sphere/internal/domain/features"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecode(t *testing.T) {
	Convey("Given the bundled market value artifact", t, func() {
		desc, params := artifacttest.Files(artifact.KindMarketValue)

		Convey("When decoding it", func() {
			a, err := artifact.Decode(desc, params)
			So(err, ShouldBeNil)

			Convey("Then it is bound to its schema and self-describing", func() {
				So(a.Kind(), ShouldEqual, artifact.KindMarketValue)
				So(a.SchemaVersion(), ShouldEqual, features.MarketValueV1)
				So(a.Version(), ShouldEqual, "mv-2026.03.1")
				So(a.Baseline(), ShouldEqual, 40.0)
				So(a.Tolerance(), ShouldEqual, 1e-3)
				So(a.Model().Type(), ShouldEqual, artifact.TypeLinear)
				So(a.Predict(a.Reference()), ShouldAlmostEqual, 40.0, 1e-9)
			})

			Convey("And callers cannot mutate its reference point", func() {
				ref := a.Reference()
				ref[0] = 99
				So(a.Reference()[0], ShouldEqual, 4.0)
			})
		})

		Convey("When the descriptor is missing", func() {
			_, err := artifact.Decode(nil, params)
			So(errors.Is(err, artifact.ErrMissingDescriptor), ShouldBeTrue)
		})

		Convey("When the declared schema has no feature schema", func() {
			bad := []byte(strings.Replace(string(desc), "schema_version: market_value.v1", "schema_version: market_value.v7", 1))
			_, err := artifact.Decode(bad, params)
			So(errors.Is(err, artifact.ErrSchemaNotRegistered), ShouldBeTrue)
		})

		Convey("When the schema belongs to another kind", func() {
			bad := []byte(strings.Replace(string(desc), "schema_version: market_value.v1", "schema_version: plep.v1", 1))
			_, err := artifact.Decode(bad, params)
			So(errors.Is(err, artifact.ErrInvalidArtifact), ShouldBeTrue)
		})

		Convey("When the declared baseline disagrees with the model", func() {
			bad := []byte(strings.Replace(string(desc), "value: 40", "value: 41", 1))
			_, err := artifact.Decode(bad, params)
			So(errors.Is(err, artifact.ErrBaselineMismatch), ShouldBeTrue)
		})

		Convey("When the weights skip a slot", func() {
			bad := []byte(strings.Replace(string(params), `"niche_breadth": 0.5`, `"other": 0.5`, 1))
			_, err := artifact.Decode(desc, bad)
			So(errors.Is(err, artifact.ErrInvalidArtifact), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "niche_breadth")
		})

		Convey("When the descriptor carries an unknown field", func() {
			bad := append([]byte("surprise: 1\n"), desc...)
			_, err := artifact.Decode(bad, params)
			So(errors.Is(err, artifact.ErrInvalidArtifact), ShouldBeTrue)
		})
	})

	Convey("Given the bundled plep artifact", t, func() {
		a := artifacttest.Must(artifact.KindPLEP)

		Convey("Then the interaction model is not exactly additive", func() {
			_, ok := a.Model().Weights()
			So(ok, ShouldBeFalse)
			So(a.Decomposer(), ShouldEqual, "sampling")
		})
	})

	Convey("Retag only changes the version", t, func() {
		a := artifacttest.Must(artifact.KindMarketValue, "mv-next")
		So(a.Version(), ShouldEqual, "mv-next")
		So(a.Baseline(), ShouldEqual, 40.0)
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given a minmax artifact over [0,100]", t, func() {
		a := artifacttest.Must(artifact.KindMarketValue)
		So(a.Normalize(61.5), ShouldAlmostEqual, 61.5, 1e-9)
		So(a.Normalize(-3), ShouldEqual, 0.0)
		So(a.Normalize(140), ShouldEqual, 100.0)
	})

	Convey("Given a sigmoid artifact centred on 50", t, func() {
		a := artifacttest.Must(artifact.KindPLEP)
		So(a.Normalize(50), ShouldAlmostEqual, 50.0, 1e-9)
		So(a.Normalize(80), ShouldBeGreaterThan, a.Normalize(60))
		So(a.Normalize(1e6), ShouldBeLessThanOrEqualTo, 100.0)
	})
}
