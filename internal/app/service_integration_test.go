package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/sphere/internal/app"
	"github.com/okian/sphere/internal/adapters/repository"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
)

func update(id string, v float64, at time.Time) model.ScoreUpdate {
	return model.ScoreUpdate{PlatformID: id, Metric: model.MetricMarketValue, Value: v, At: at, NicheTags: []string{"fitness"}}
}

func TestAlertScheduleScenario(t *testing.T) {
	Convey("Given a crosses-above 70 rule with a one hour cooldown", t, func() {
		h := newHarness()
		ctx := context.Background()
		So(h.svc.Start(ctx), ShouldBeNil)
		defer h.svc.Stop()

		rule, err := h.svc.CreateRule(ctx, model.AlertRule{
			OwnerID:   "brand-7",
			Target:    "influencer:ig:scenario-a",
			Metric:    model.MetricMarketValue,
			Operator:  model.OpCrossesAbove,
			Threshold: 70,
			Cooldown:  time.Hour,
		})
		So(err, ShouldBeNil)

		Convey("When scores 65, 68, 72, 74, 69 arrive one per cycle", func() {
			tick := 10 * time.Minute
			for i, v := range []float64{65, 68, 72, 74, 69} {
				at := t0.Add(time.Duration(i) * tick)
				h.clock.Set(at)
				_, err := h.svc.RunStoredCycle(ctx, []model.ScoreUpdate{update("ig:scenario-a", v, at)})
				So(err, ShouldBeNil)
			}

			Convey("Then exactly one event fired, at the 72 tick", func() {
				events := h.sink.Events()
				So(events, ShouldHaveLength, 1)
				So(events[0].Snapshot.Value, ShouldEqual, 72.0)
				So(events[0].FiredAt.Equal(t0.Add(2*tick)), ShouldBeTrue)
				So(events[0].OwnerID, ShouldEqual, "brand-7")
			})

			Convey("And the rule stays in cooldown until an hour past the fire", func() {
				h.clock.Set(t0.Add(2*tick + 59*time.Minute))
				_, err := h.svc.RunStoredCycle(ctx, []model.ScoreUpdate{})
				So(err, ShouldBeNil)
				got, err := h.svc.GetRule(ctx, rule.ID)
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, model.StateCooldown)

				h.clock.Set(t0.Add(2*tick + time.Hour))
				_, err = h.svc.RunStoredCycle(ctx, []model.ScoreUpdate{})
				So(err, ShouldBeNil)
				got, err = h.svc.GetRule(ctx, rule.ID)
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, model.StateArmed)
				So(h.sink.Events(), ShouldHaveLength, 1)
			})
		})

		Convey("When the user edits the rule after it fired", func() {
			h.clock.Set(t0)
			_, err := h.svc.RunStoredCycle(ctx, []model.ScoreUpdate{update("ig:scenario-a", 65, t0)})
			So(err, ShouldBeNil)
			h.clock.Set(t0.Add(time.Minute))
			_, err = h.svc.RunStoredCycle(ctx, []model.ScoreUpdate{update("ig:scenario-a", 75, t0.Add(time.Minute))})
			So(err, ShouldBeNil)
			So(h.sink.Events(), ShouldHaveLength, 1)

			th := 80.0
			edited, err := h.svc.EditRule(ctx, rule.ID, model.RuleEdit{Threshold: &th})
			So(err, ShouldBeNil)

			Convey("Then the rule is re-armed with no history", func() {
				So(edited.State, ShouldEqual, model.StateArmed)
				So(edited.Threshold, ShouldEqual, 80.0)
				So(edited.LastValues, ShouldBeEmpty)
			})
		})

		Convey("When computed scores feed the stream between cycles", func() {
			p := scenarioAProfile()
			So(h.store.Put(ctx, p), ShouldBeNil)
			_, err := h.svc.ComputeMarketValue(ctx, p.PlatformID)
			So(err, ShouldBeNil)

			rep, err := h.svc.RunStoredCycle(ctx, nil)

			Convey("Then the cycle drains them", func() {
				So(err, ShouldBeNil)
				So(rep.Rules, ShouldEqual, 1)
				So(rep.Evaluated, ShouldEqual, 1)
				So(h.svc.GetStats().ScoreQueue, ShouldEqual, 0)
				got, err := h.svc.GetRule(ctx, rule.ID)
				So(err, ShouldBeNil)
				So(got.LastValues, ShouldContainKey, p.PlatformID)
			})
		})
	})
}

func TestRunAlertCyclePure(t *testing.T) {
	Convey("Given rules that are not stored", t, func() {
		h := newHarness()
		rules := []model.AlertRule{
			{ID: "niche", OwnerID: "b", Target: "niche:fitness", Metric: model.MetricMarketValue, Operator: model.OpGreaterOrEqual, Threshold: 60, State: model.StateArmed},
			{ID: "broken", OwnerID: "b", Target: "nowhere", Metric: model.MetricMarketValue, Operator: model.OpGreaterOrEqual, Threshold: 60},
		}

		Convey("When running a cycle directly", func() {
			events := h.svc.RunAlertCycle(context.Background(), rules, []model.ScoreUpdate{update("ig:x", 61, t0)})

			Convey("Then the valid rule fires and the malformed one is skipped", func() {
				So(events, ShouldHaveLength, 1)
				So(events[0].RuleID, ShouldEqual, "niche")
				So(h.sink.Events(), ShouldBeEmpty)
			})
		})
	})
}

func TestServiceOnSQLite(t *testing.T) {
	Convey("Given a service backed by sqlite", t, func() {
		ctx := context.Background()
		store, err := repository.Open(ctx, repository.SQLite, filepath.Join(t.TempDir(), "sphere.db"),
			repository.WithLogger(logger.Discard()))
		So(err, ShouldBeNil)

		h := newHarness(service.WithStore(store))
		So(h.svc.Start(ctx), ShouldBeNil)
		defer h.svc.Stop()

		Convey("When a profile is stored and valued", func() {
			So(h.svc.PutProfile(ctx, scenarioAProfile()), ShouldBeNil)
			mv, err := h.svc.ComputeMarketValue(ctx, "ig:scenario-a")

			Convey("Then the result matches the in-memory store", func() {
				So(err, ShouldBeNil)
				So(mv.Tier.Label, ShouldEqual, "Emerging")
				So(mv.Attribution.Positive[0].Feature, ShouldEqual, "engagement_rate")
			})
		})
	})
}
