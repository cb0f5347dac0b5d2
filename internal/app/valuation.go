package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/internal/domain/scoring"
	"github.com/okian/sphere/internal/domain/types"
	"github.com/okian/sphere/pkg/logger"
	"github.com/okian/sphere/pkg/metrics"
)

// ComputeMarketValue scores a creator's market value, classifies it into a
// tier and prices a sponsored post. The score is appended to the score stream.
func (s *Service) ComputeMarketValue(ctx context.Context, platformID string) (types.MarketValue, error) {
	p, err := s.profile(ctx, platformID)
	if err != nil {
		return types.MarketValue{}, err
	}
	res, err := s.infer(ctx, artifact.KindMarketValue, features.Entity{Profile: p})
	if err != nil {
		return types.MarketValue{}, err
	}

	mv := types.MarketValue{
		Score:       res.Score,
		Tier:        s.tiers.Classify(res.Score.Value),
		Attribution: res.Attribution,
	}
	if fee, ok := s.tiers.EstimatePostFee(res.Score.Value); ok {
		mv.EstimatedPostFeeUSD = &fee
	}
	s.publishScore(ctx, p, res.Score)
	return mv, nil
}

// ComputePLEP predicts engagement for a draft post by the creator.
func (s *Service) ComputePLEP(ctx context.Context, platformID string, draft model.ContentDraft) (types.PLEP, error) {
	p, err := s.profile(ctx, platformID)
	if err != nil {
		return types.PLEP{}, err
	}
	res, err := s.infer(ctx, artifact.KindPLEP, features.Entity{Profile: p, Draft: &draft})
	if err != nil {
		return types.PLEP{}, err
	}
	s.publishScore(ctx, p, res.Score)
	return types.PLEP{Score: res.Score, Attribution: res.Attribution}, nil
}

// Rescore recomputes market value for platformID. It implements the worker
// pool's Rescorer.
func (s *Service) Rescore(ctx context.Context, platformID string) error {
	_, err := s.ComputeMarketValue(ctx, platformID)
	return err
}

// Enqueue schedules a rescore. It returns false when the queue is full.
func (s *Service) Enqueue(ctx context.Context, change model.ProfileChange) bool {
	if change.At.IsZero() {
		change.At = s.now()
	}
	return s.rescores.Enqueue(ctx, change)
}

// PutProfile stores a profile from ingestion and schedules its rescore.
func (s *Service) PutProfile(ctx context.Context, p *model.InfluencerProfile) error {
	if err := s.store.Put(ctx, p); err != nil {
		return err
	}
	if !s.Enqueue(ctx, model.ProfileChange{PlatformID: p.PlatformID, Reason: "profile_put"}) {
		s.logger.Warn(ctx, "rescore queue full, profile change dropped",
			logger.String("platform_id", p.PlatformID))
	}
	return nil
}

func (s *Service) profile(ctx context.Context, platformID string) (*model.InfluencerProfile, error) {
	if strings.TrimSpace(platformID) == "" {
		return nil, fmt.Errorf("%w: empty platform id", ErrInvalidRequest)
	}
	p, err := s.store.Get(ctx, platformID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// infer builds the feature vector for the schema of the active artifact and
// scores it against that same artifact, so a concurrent reload cannot pair a
// vector with the wrong model.
func (s *Service) infer(ctx context.Context, kind artifact.Kind, e features.Entity) (scoring.Result, error) {
	start := time.Now()
	h, err := s.registry.Resolve(kind)
	if err != nil {
		metrics.RecordInference(string(kind), "not_loaded", msSince(start))
		return scoring.Result{}, err
	}
	v, err := s.catalog.Build(e, h.SchemaVersion())
	if err != nil {
		metrics.RecordInference(string(kind), "missing_data", msSince(start))
		return scoring.Result{}, err
	}
	res, err := s.scorer.ScoreWith(ctx, h.Artifact(), v)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Attribution.Degraded:
		outcome = "degraded"
	}
	metrics.RecordInference(string(kind), outcome, msSince(start))
	return res, err
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

// publishScore appends to the score stream. A full stream drops the update;
// the next score for the creator supersedes it.
func (s *Service) publishScore(ctx context.Context, p *model.InfluencerProfile, sc scoring.Score) {
	u := model.ScoreUpdate{
		PlatformID:      p.PlatformID,
		Metric:          sc.Kind,
		Value:           sc.Value,
		At:              s.now(),
		NicheTags:       append([]string(nil), p.NicheTags...),
		SchemaVersion:   sc.SchemaVersion,
		ArtifactVersion: sc.ArtifactVersion,
	}
	if !s.scores.Enqueue(ctx, u) {
		s.logger.Warn(ctx, "score stream full, update dropped",
			logger.String("platform_id", u.PlatformID),
			logger.String("metric", string(u.Metric)))
	}
	if s.scorePub != nil {
		if err := s.scorePub.PublishScore(ctx, u); err != nil {
			s.logger.Warn(ctx, "publish score", logger.String("platform_id", u.PlatformID), logger.Error(err))
		}
	}
}
