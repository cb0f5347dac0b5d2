package loadgen_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sphere/internal/adapters/http/api"
	"github.com/okian/sphere/internal/adapters/repository"
	service "github.com/okian/sphere/internal/app"
	"github.com/okian/sphere/internal/domain/artifact/artifacttest"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/internal/loadgen"
	"github.com/okian/sphere/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		g := loadgen.NewGenerator("tiktok", 42)

		Convey("profiles are well formed", func() {
			ps := g.Profiles(50)
			So(ps, ShouldHaveLength, 50)
			seen := map[string]bool{}
			for _, p := range ps {
				So(p.Platform, ShouldEqual, "tiktok")
				So(p.PlatformID, ShouldStartWith, "tiktok:")
				So(seen[p.PlatformID], ShouldBeFalse)
				seen[p.PlatformID] = true
				So(*p.FollowerCount, ShouldBeGreaterThanOrEqualTo, 1000)
				So(p.NicheTags, ShouldNotBeEmpty)
				So(p.Snapshots, ShouldHaveLength, 6)
				So(p.Snapshots[0].At.Before(p.Snapshots[5].At), ShouldBeTrue)
			}
		})

		Convey("the same seed yields the same metrics", func() {
			a := loadgen.NewGenerator("tiktok", 7).Profiles(5)
			b := loadgen.NewGenerator("tiktok", 7).Profiles(5)
			for i := range a {
				So(*a[i].FollowerCount, ShouldEqual, *b[i].FollowerCount)
				So(a[i].PlatformID, ShouldNotEqual, b[i].PlatformID)
			}
		})
	})
}

func valuation(id string, score float64, tier int, label string, fee float64) loadgen.Valuation {
	var v loadgen.Valuation
	v.PlatformID = id
	v.Score.Value = score
	v.Tier.Index = tier
	v.Tier.Label = label
	v.EstimatedPostFeeUSD = &fee
	return v
}

func TestVerify(t *testing.T) {
	Convey("Given a set of valuations", t, func() {
		Convey("consistent answers pass", func() {
			err := loadgen.Verify([]loadgen.Valuation{
				valuation("a", 80, 1, "Established", 3000),
				valuation("b", 40, 0, "Emerging", 1700),
				valuation("c", 95, 2, "Elite", 9000),
				valuation("d", 50, 0, "Emerging", 2000),
			})
			So(err, ShouldBeNil)
		})

		Convey("a tier that drops with a higher score fails", func() {
			err := loadgen.Verify([]loadgen.Valuation{
				valuation("a", 80, 1, "Established", 3000),
				valuation("b", 85, 0, "Emerging", 3100),
			})
			So(errors.Is(err, loadgen.ErrInconsistent), ShouldBeTrue)
		})

		Convey("two labels for one tier fail", func() {
			err := loadgen.Verify([]loadgen.Valuation{
				valuation("a", 10, 0, "Emerging", 800),
				valuation("b", 20, 0, "Rising", 1100),
			})
			So(errors.Is(err, loadgen.ErrInconsistent), ShouldBeTrue)
		})

		Convey("an out of range score fails", func() {
			err := loadgen.Verify([]loadgen.Valuation{valuation("a", 101, 2, "Elite", 9000)})
			So(errors.Is(err, loadgen.ErrInconsistent), ShouldBeTrue)
		})

		Convey("nothing to verify fails", func() {
			So(errors.Is(loadgen.Verify(nil), loadgen.ErrInconsistent), ShouldBeTrue)
		})
	})
}

func TestRunAgainstService(t *testing.T) {
	Convey("Given a running service behind the HTTP API", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithLogger(logger.Discard()),
			service.WithStore(repository.NewMemoryStore()),
			service.WithArtifactSource(registry.NewFSSource(artifacttest.FS())),
			service.WithReloadInterval(0),
			service.WithWorkerCount(2),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(api.NewServer(svc, api.WithLogger(logger.Discard())).Routes())
		defer srv.Close()

		out := t.TempDir()
		r := loadgen.NewRunner(loadgen.Config{
			BaseURL:   srv.URL,
			Profiles:  40,
			Workers:   4,
			Timeout:   5 * time.Second,
			Seed:      1,
			OutputDir: out,
		})

		Convey("every creator is stored, valued and consistent", func() {
			stats, err := r.Run(ctx)
			So(err, ShouldBeNil)
			So(stats.Generated, ShouldEqual, 40)
			So(stats.Stored, ShouldEqual, 40)
			So(stats.StoreFails, ShouldEqual, 0)
			So(stats.Valued+stats.Missing, ShouldEqual, 40)
			So(stats.ValueFails, ShouldEqual, 0)

			files, _ := filepath.Glob(filepath.Join(out, "profiles_*.json"))
			So(files, ShouldHaveLength, 1)
		})
	})

	Convey("Given a service that never becomes ready", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
		defer cancel()

		Convey("the run gives up with the context", func() {
			_, err := loadgen.NewRunner(loadgen.Config{BaseURL: srv.URL, Profiles: 1, Timeout: time.Second}).Run(ctx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}
