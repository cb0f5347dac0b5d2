package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/sphere/internal/domain/features"
)

type featureView struct {
	SchemaVersion string             `json:"schema_version"`
	Values        map[string]float64 `json:"values"`
	Order         []string           `json:"order"`
	Imputed       []string           `json:"imputed"`
}

func newFeaturesCmd() *cobra.Command {
	var (
		schema string
		draft  string
	)
	cmd := &cobra.Command{
		Use:   "features <profile.json>",
		Short: "Build the feature vector of a profile",
		Long:  "Build the feature vector of a profile. Use - to read the profile from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readProfile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			d, err := readDraft(draft, cmd.InOrStdin())
			if err != nil {
				return err
			}
			v, err := features.Build(features.Entity{Profile: p, Draft: d}, schema)
			if err != nil {
				return err
			}
			imputed := v.Imputed
			if imputed == nil {
				imputed = []string{}
			}
			return printJSON(cmd.OutOrStdout(), featureView{
				SchemaVersion: v.SchemaVersion,
				Values:        v.Map(),
				Order:         v.Names,
				Imputed:       imputed,
			})
		},
	}
	cmd.Flags().StringVar(&schema, "schema", features.MarketValueV1, "feature schema version")
	cmd.Flags().StringVar(&draft, "draft", "", "content draft JSON, required by draft schemas")
	return cmd
}
