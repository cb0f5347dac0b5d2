package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sphere/internal/adapters/http/api"
	"github.com/okian/sphere/internal/adapters/repository"
	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/internal/domain/scoring"
	"github.com/okian/sphere/internal/domain/tier"
	"github.com/okian/sphere/internal/domain/types"
	"github.com/okian/sphere/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type mockDeps struct {
	ready      bool
	mvErr      error
	plepErr    error
	putErr     error
	queueOpen  bool
	enqueued   []model.ProfileChange
	put        []*model.InfluencerProfile
	drafts     []model.ContentDraft
	snapshots  [][]model.ScoreUpdate
	rules      map[string]model.AlertRule
	ruleErr    error
	lastEdit   model.RuleEdit
	cycleEvent []model.AlertEvent
}

func newMockDeps() *mockDeps {
	return &mockDeps{ready: true, queueOpen: true, rules: map[string]model.AlertRule{}}
}

func (m *mockDeps) Ready() bool { return m.ready }

func (m *mockDeps) GetStats() types.Stats {
	return types.Stats{Started: true, Workers: 2, Artifacts: []string{"market_value@mv-1"}}
}

func (m *mockDeps) ComputeMarketValue(_ context.Context, id string) (types.MarketValue, error) {
	if m.mvErr != nil {
		return types.MarketValue{}, m.mvErr
	}
	fee := 2345.0
	return types.MarketValue{
		Score: scoring.Score{Kind: artifact.KindMarketValue, Value: 61.5, Raw: 61.495, SchemaVersion: "mv-v1", ArtifactVersion: "mv-1"},
		Tier:  tier.Tier{Index: 0, Label: "Emerging"},
		Attribution: scoring.Attribution{
			Method:   "linear",
			Baseline: 8,
			Positive: []scoring.Contribution{{Feature: "engagement_rate", Value: 0.05, Contribution: 30, Sign: scoring.Positive}},
		},
		EstimatedPostFeeUSD: &fee,
	}, nil
}

func (m *mockDeps) ComputePLEP(_ context.Context, _ string, d model.ContentDraft) (types.PLEP, error) {
	m.drafts = append(m.drafts, d)
	if m.plepErr != nil {
		return types.PLEP{}, m.plepErr
	}
	return types.PLEP{Score: scoring.Score{Kind: artifact.KindPLEP, Value: 42}}, nil
}

func (m *mockDeps) PutProfile(_ context.Context, p *model.InfluencerProfile) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.put = append(m.put, p)
	return nil
}

func (m *mockDeps) Enqueue(_ context.Context, c model.ProfileChange) bool {
	if !m.queueOpen {
		return false
	}
	m.enqueued = append(m.enqueued, c)
	return true
}

func (m *mockDeps) RunStoredCycle(_ context.Context, snapshot []model.ScoreUpdate) (alerting.Report, error) {
	m.snapshots = append(m.snapshots, snapshot)
	return alerting.Report{ID: "cycle-1", Rules: len(m.rules), Fired: len(m.cycleEvent), Events: m.cycleEvent}, nil
}

func (m *mockDeps) CreateRule(_ context.Context, r model.AlertRule) (model.AlertRule, error) {
	if r.Target == "" {
		return model.AlertRule{}, fmt.Errorf("%w: empty target", repository.ErrInvalidRule)
	}
	r.ID = fmt.Sprintf("rule-%d", len(m.rules)+1)
	r.State = model.StateArmed
	r.Version = 1
	m.rules[r.ID] = r
	return r, nil
}

func (m *mockDeps) ListRules(context.Context) ([]model.AlertRule, error) {
	out := make([]model.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockDeps) GetRule(_ context.Context, id string) (model.AlertRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return model.AlertRule{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *mockDeps) EditRule(_ context.Context, id string, e model.RuleEdit) (model.AlertRule, error) {
	if m.ruleErr != nil {
		return model.AlertRule{}, m.ruleErr
	}
	r, ok := m.rules[id]
	if !ok {
		return model.AlertRule{}, repository.ErrNotFound
	}
	m.lastEdit = e
	if e.Threshold != nil {
		r.Threshold = *e.Threshold
	}
	r.State = model.StateArmed
	r.Version++
	m.rules[id] = r
	return r, nil
}

func (m *mockDeps) DeleteRule(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}

func TestHealthEndpoints(t *testing.T) {
	Convey("Given the API router", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps).Routes()

		Convey("healthz is always ok", func() {
			So(do(h, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("readyz follows artifact readiness", func() {
			So(do(h, http.MethodGet, "/readyz", "").Code, ShouldEqual, http.StatusOK)
			deps.ready = false
			So(do(h, http.MethodGet, "/readyz", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("stats renders the service view", func() {
			rec := do(h, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var st types.Stats
			So(decodeBody(rec, &st), ShouldBeNil)
			So(st.Workers, ShouldEqual, 2)
		})

		Convey("metrics serves the prometheus registry", func() {
			do(h, http.MethodGet, "/healthz", "")
			rec := do(h, http.MethodGet, "/metrics", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})
}

func TestMarketValueEndpoint(t *testing.T) {
	Convey("Given the market value endpoint", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps).Routes()

		Convey("a scored creator renders score, tier, attribution and fee", func() {
			rec := do(h, http.MethodGet, "/v1/influencers/ig:1/market-value", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var v types.MarketValueView
			So(decodeBody(rec, &v), ShouldBeNil)
			So(v.PlatformID, ShouldEqual, "ig:1")
			So(v.Tier.Label, ShouldEqual, "Emerging")
			So(v.Attribution.Positive, ShouldHaveLength, 1)
			So(v.Attribution.Negative, ShouldNotBeNil)
			So(*v.EstimatedPostFeeUSD, ShouldEqual, 2345.0)
		})

		errCases := []struct {
			name   string
			err    error
			status int
		}{
			{"unknown creator", repository.ErrNotFound, http.StatusNotFound},
			{"missing data", &features.MissingDataError{Slot: "follower_count_log", SchemaVersion: "mv-v1"}, http.StatusUnprocessableEntity},
			{"model not loaded", registry.ErrModelNotLoaded, http.StatusServiceUnavailable},
			{"schema mismatch", scoring.ErrFeatureSchemaMismatch, http.StatusInternalServerError},
		}
		for _, tc := range errCases {
			Convey("maps "+tc.name, func() {
				deps.mvErr = fmt.Errorf("wrapped: %w", tc.err)
				rec := do(h, http.MethodGet, "/v1/influencers/ig:1/market-value", "")
				So(rec.Code, ShouldEqual, tc.status)
			})
		}
	})
}

func TestPLEPEndpoint(t *testing.T) {
	Convey("Given the engagement prediction endpoint", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps).Routes()

		Convey("the draft reaches the service", func() {
			rec := do(h, http.MethodPost, "/v1/influencers/ig:1/plep", `{"caption":"new drop","is_video":true}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.drafts, ShouldHaveLength, 1)
			So(deps.drafts[0].Caption, ShouldEqual, "new drop")
			So(deps.drafts[0].IsVideo, ShouldBeTrue)
		})

		Convey("malformed JSON is a bad request", func() {
			rec := do(h, http.MethodPost, "/v1/influencers/ig:1/plep", `{"caption":`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.drafts, ShouldBeEmpty)
		})

		Convey("unknown fields are rejected", func() {
			rec := do(h, http.MethodPost, "/v1/influencers/ig:1/plep", `{"title":"x"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRescoreAndProfileEndpoints(t *testing.T) {
	Convey("Given the ingestion endpoints", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps).Routes()

		Convey("rescore is accepted while the queue has room", func() {
			rec := do(h, http.MethodPost, "/v1/influencers/ig:1/rescore", "")
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(deps.enqueued, ShouldHaveLength, 1)
			So(deps.enqueued[0].PlatformID, ShouldEqual, "ig:1")
		})

		Convey("a full queue is backpressure", func() {
			deps.queueOpen = false
			rec := do(h, http.MethodPost, "/v1/influencers/ig:1/rescore", "")
			So(rec.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("a profile body without id takes the path id", func() {
			body := `{"platform":"instagram","username":"cam","follower_count":50000,
				"snapshots":[{"at":"2026-01-01T00:00:00Z","likes":10}]}`
			rec := do(h, http.MethodPut, "/v1/influencers/ig:1", body)
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(deps.put, ShouldHaveLength, 1)
			So(deps.put[0].PlatformID, ShouldEqual, "ig:1")
			So(*deps.put[0].FollowerCount, ShouldEqual, 50000)
			So(deps.put[0].Snapshots[0].At.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("a mismatched id is rejected", func() {
			rec := do(h, http.MethodPut, "/v1/influencers/ig:1", `{"platform_id":"ig:2"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.put, ShouldBeEmpty)
		})

		Convey("an invalid profile is a bad request", func() {
			deps.putErr = fmt.Errorf("%w: missing platform", repository.ErrInvalidProfile)
			rec := do(h, http.MethodPut, "/v1/influencers/ig:1", `{}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAlertEndpoints(t *testing.T) {
	Convey("Given the alert endpoints", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps).Routes()

		create := func() types.RuleView {
			rec := do(h, http.MethodPost, "/v1/alerts/rules",
				`{"owner_id":"u1","target":"ig:1","metric":"market_value","operator":"crosses_above","threshold":70,"cooldown_seconds":3600}`)
			So(rec.Code, ShouldEqual, http.StatusCreated)
			var v types.RuleView
			So(decodeBody(rec, &v), ShouldBeNil)
			return v
		}

		Convey("rules can be created, read and listed", func() {
			v := create()
			So(v.State, ShouldEqual, string(model.StateArmed))
			So(v.CooldownSec, ShouldEqual, 3600)

			rec := do(h, http.MethodGet, "/v1/alerts/rules/"+v.ID, "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			rec = do(h, http.MethodGet, "/v1/alerts/rules", "")
			var list []types.RuleView
			So(decodeBody(rec, &list), ShouldBeNil)
			So(list, ShouldHaveLength, 1)
		})

		Convey("an invalid rule is rejected", func() {
			rec := do(h, http.MethodPost, "/v1/alerts/rules", `{"owner_id":"u1","metric":"market_value"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("an edit applies only the given fields", func() {
			v := create()
			rec := do(h, http.MethodPut, "/v1/alerts/rules/"+v.ID, `{"threshold":75}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(*deps.lastEdit.Threshold, ShouldEqual, 75)
			So(deps.lastEdit.Target, ShouldBeNil)
		})

		Convey("a lost edit race is a conflict", func() {
			v := create()
			deps.ruleErr = alerting.ErrVersionConflict
			rec := do(h, http.MethodPut, "/v1/alerts/rules/"+v.ID, `{"threshold":75}`)
			So(rec.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("delete removes the rule and a second delete is not found", func() {
			v := create()
			So(do(h, http.MethodDelete, "/v1/alerts/rules/"+v.ID, "").Code, ShouldEqual, http.StatusNoContent)
			So(do(h, http.MethodDelete, "/v1/alerts/rules/"+v.ID, "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("a cycle without a body evaluates the pending stream", func() {
			deps.cycleEvent = []model.AlertEvent{{ID: "e1", RuleID: "rule-1", Message: "crossed"}}
			rec := do(h, http.MethodPost, "/v1/alerts/cycle", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.snapshots, ShouldHaveLength, 1)
			So(deps.snapshots[0], ShouldBeEmpty)

			var v types.CycleView
			So(decodeBody(rec, &v), ShouldBeNil)
			So(v.Fired, ShouldEqual, 1)
			So(v.Events[0].RuleID, ShouldEqual, "rule-1")
		})

		Convey("a cycle with a snapshot passes it through", func() {
			rec := do(h, http.MethodPost, "/v1/alerts/cycle",
				`{"snapshot":[{"platform_id":"ig:1","metric":"market_value","value":72,"at":"2026-01-01T00:10:00Z"}]}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.snapshots[0], ShouldHaveLength, 1)
			So(deps.snapshots[0][0].Value, ShouldEqual, 72)
		})
	})
}
