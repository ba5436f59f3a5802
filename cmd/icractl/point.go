package main

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/icra-risk-service/internal/app"
	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/spf13/cobra"
)

func newPointCmd() *cobra.Command {
	var (
		date   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "point <id>",
		Short: "Evaluate a single point, failing on any stage error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDateFlag(date)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			c, err := app.Build(e.cfg, e.metrics, e.logger)
			if err != nil {
				return err
			}

			a, err := c.Orchestrator.Evaluate(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			}
			p, _ := c.Registry.Get(a.PointID)
			return renderAssessments(out, map[string]string{p.ID: p.Name}, []domain.RiskAssessment{a})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "evaluation date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the assessment as JSON")
	return cmd
}
