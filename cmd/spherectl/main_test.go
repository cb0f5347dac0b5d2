package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/artifact/artifacttest"
	"github.com/okian/sphere/internal/domain/types"
)

func run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeArtifacts lays the fixtures out as <dir>/<kind>/{descriptor.yaml,model.json}.
func writeArtifacts(t *testing.T, kinds ...artifact.Kind) string {
	dir := t.TempDir()
	for _, k := range kinds {
		desc, params := artifacttest.Files(k)
		sub := filepath.Join(dir, string(k))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(sub, "descriptor.yaml"), desc, 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(sub, "model.json"), params, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeFile(t *testing.T, name, body string) string {
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

const scenarioA = `{
  "platform_id": "ig:scenario-a",
  "platform": "instagram",
  "username": "scenario_a",
  "niche_tags": ["fitness"],
  "follower_count": 50000,
  "engagement_rate": 0.05
}`

func TestArtifactValidate(t *testing.T) {
	Convey("Given an artifact directory", t, func() {
		Convey("valid fixtures report ok", func() {
			dir := writeArtifacts(t, artifact.KindMarketValue, artifact.KindPLEP)
			out, err := run("artifact", "validate", dir)
			So(err, ShouldBeNil)

			var reps []artifactReport
			So(json.Unmarshal([]byte(out), &reps), ShouldBeNil)
			So(reps, ShouldHaveLength, 2)
			So(reps[0].Status, ShouldEqual, "ok")
			So(reps[0].SchemaVersion, ShouldEqual, "market_value.v1")
			So(reps[1].Status, ShouldEqual, "ok")
		})

		Convey("a missing kind is reported absent", func() {
			dir := writeArtifacts(t, artifact.KindMarketValue)
			out, err := run("artifact", "validate", dir)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"absent"`)
		})

		Convey("a broken model file fails validation", func() {
			dir := writeArtifacts(t, artifact.KindMarketValue)
			So(os.WriteFile(filepath.Join(dir, "market_value", "model.json"), []byte(`{"type":"linear"}`), 0o600), ShouldBeNil)
			out, err := run("artifact", "validate", dir)
			So(err, ShouldNotBeNil)
			So(out, ShouldContainSubstring, `"invalid"`)
		})

		Convey("an empty directory is an error", func() {
			_, err := run("artifact", "validate", t.TempDir())
			So(err, ShouldNotBeNil)
		})
	})
}

func TestFeaturesCommand(t *testing.T) {
	Convey("Given a profile file", t, func() {
		profile := writeFile(t, "profile.json", scenarioA)

		Convey("the market value vector is printed in slot order", func() {
			out, err := run("features", profile)
			So(err, ShouldBeNil)

			var v featureView
			So(json.Unmarshal([]byte(out), &v), ShouldBeNil)
			So(v.SchemaVersion, ShouldEqual, "market_value.v1")
			So(v.Order[0], ShouldEqual, "log_followers")
			So(v.Values["engagement_rate"], ShouldAlmostEqual, 0.05)
		})

		Convey("an unknown schema fails", func() {
			_, err := run("features", profile, "--schema", "market_value.v9")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestScoreCommand(t *testing.T) {
	Convey("Given local artifacts and a profile", t, func() {
		dir := writeArtifacts(t, artifact.KindMarketValue, artifact.KindPLEP)
		profile := writeFile(t, "profile.json", scenarioA)

		Convey("the market value is scored and tiered", func() {
			out, err := run("score", profile, "--artifacts", dir)
			So(err, ShouldBeNil)

			var v types.MarketValueView
			So(json.Unmarshal([]byte(out), &v), ShouldBeNil)
			So(v.Score.Value, ShouldAlmostEqual, 61.995, 0.01)
			So(v.Tier.Label, ShouldEqual, "Emerging")
			So(v.Attribution.Positive, ShouldNotBeEmpty)
		})

		Convey("plep needs a draft", func() {
			_, err := run("score", profile, "--artifacts", dir, "--kind", "plep")
			So(err, ShouldNotBeNil)

			draft := writeFile(t, "draft.json", `{"caption":"morning run #fitness","is_video":true}`)
			out, err := run("score", profile, "--artifacts", dir, "--kind", "plep", "--draft", draft)
			So(err, ShouldBeNil)
			var v types.PLEPView
			So(json.Unmarshal([]byte(out), &v), ShouldBeNil)
			So(v.Score.Kind, ShouldEqual, "plep")
		})

		Convey("an unknown kind is rejected", func() {
			_, err := run("score", profile, "--artifacts", dir, "--kind", "reach")
			So(err, ShouldNotBeNil)
		})
	})
}
