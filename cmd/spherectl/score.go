package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/sphere/internal/config"
	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/internal/domain/scoring"
	"github.com/okian/sphere/internal/domain/tier"
	"github.com/okian/sphere/internal/domain/types"
	"github.com/okian/sphere/pkg/logger"
)

func newScoreCmd() *cobra.Command {
	var (
		dir   string
		kind  string
		draft string
	)
	cmd := &cobra.Command{
		Use:   "score <profile.json>",
		Short: "Score a profile offline against local artifacts",
		Long: "Score a profile offline against local artifacts. Tiers, fees and attribution " +
			"settings come from the same configuration the server reads.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.ArtifactDir
			}
			tiers, err := tier.New(cfg.TierBoundaries, cfg.TierLabels, tier.WithFees(cfg.Fees()...))
			if err != nil {
				return err
			}

			p, err := readProfile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			d, err := readDraft(draft, cmd.InOrStdin())
			if err != nil {
				return err
			}

			k := artifact.Kind(kind)
			if k != artifact.KindMarketValue && k != artifact.KindPLEP {
				return fmt.Errorf("%w: %q", artifact.ErrUnknownKind, kind)
			}
			reg := registry.New(
				registry.WithSource(registry.NewDirSource(dir)),
				registry.WithLogger(logger.Named("registry")),
			)
			h, err := reg.Load(ctx, k)
			if err != nil {
				return err
			}
			v, err := features.Build(features.Entity{Profile: p, Draft: d}, h.SchemaVersion())
			if err != nil {
				return err
			}
			eng := scoring.NewEngine(reg,
				scoring.WithTopK(cfg.TopK),
				scoring.WithSamples(cfg.Samples),
				scoring.WithLogger(logger.Named("scoring")),
			)
			res, err := eng.ScoreWith(ctx, h.Artifact(), v)
			if err != nil {
				return err
			}

			if k == artifact.KindPLEP {
				return printJSON(cmd.OutOrStdout(), types.PLEP{Score: res.Score, Attribution: res.Attribution}.View(p.PlatformID))
			}
			mv := types.MarketValue{
				Score:       res.Score,
				Tier:        tiers.Classify(res.Score.Value),
				Attribution: res.Attribution,
			}
			if fee, ok := tiers.EstimatePostFee(res.Score.Value); ok {
				mv.EstimatedPostFeeUSD = &fee
			}
			return printJSON(cmd.OutOrStdout(), mv.View(p.PlatformID))
		},
	}
	cmd.Flags().StringVar(&dir, "artifacts", "", "artifact directory (default from config)")
	cmd.Flags().StringVar(&kind, "kind", string(artifact.KindMarketValue), "model kind (market_value or plep)")
	cmd.Flags().StringVar(&draft, "draft", "", "content draft JSON for plep")
	return cmd
}
