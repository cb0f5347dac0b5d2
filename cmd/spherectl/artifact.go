package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/registry"
)

// artifactKinds is every kind the service serves.
var artifactKinds = []artifact.Kind{artifact.KindMarketValue, artifact.KindPLEP}

type artifactReport struct {
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	ArtifactVersion string     `json:"artifact_version,omitempty"`
	SchemaVersion   string     `json:"schema_version,omitempty"`
	TrainedAt       *time.Time `json:"trained_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

func newArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Inspect model artifacts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate every artifact under dir as the registry would load it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := registry.NewDirSource(args[0])
			var (
				reports []artifactReport
				found   int
				bad     int
			)
			for _, kind := range artifactKinds {
				rep := artifactReport{Kind: string(kind)}
				desc, params, err := src.Fetch(cmd.Context(), kind)
				if errors.Is(err, artifact.ErrMissingDescriptor) {
					rep.Status = "absent"
					reports = append(reports, rep)
					continue
				}
				found++
				if err == nil {
					var a *artifact.Artifact
					if a, err = artifact.Decode(desc, params); err == nil {
						t := a.TrainedAt()
						rep.Status = "ok"
						rep.ArtifactVersion = a.Version()
						rep.SchemaVersion = a.SchemaVersion()
						rep.TrainedAt = &t
					}
				}
				if err != nil {
					bad++
					rep.Status = "invalid"
					rep.Error = err.Error()
				}
				reports = append(reports, rep)
			}
			if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
			switch {
			case found == 0:
				return fmt.Errorf("no artifacts under %s", args[0])
			case bad > 0:
				return fmt.Errorf("%d of %d artifacts invalid", bad, found)
			}
			return nil
		},
	})
	return cmd
}
