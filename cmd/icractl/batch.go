package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/app"
	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/pipeline"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	var (
		date    string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate every registered point and print the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			var loader pipeline.AssessmentLoader
			if publish {
				w := app.NewPublisher(e.cfg, e.logger)
				if w == nil {
					return errors.New("--publish requires KAFKA_BROKERS")
				}
				defer func() {
					if cerr := w.Close(); cerr != nil {
						e.logger.Error("kafka writer close", "error", cerr)
					}
				}()
				loader = w
			}

			ctx := cmd.Context()
			if e.cfg.BatchTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, e.cfg.BatchTimeout)
				defer cancel()
			}

			report, runErr := pipeline.NewRunner(c.Orchestrator, loader, e.logger, e.metrics).Run(ctx, day)

			out := cmd.OutOrStdout()
			names := make(map[string]string, c.Registry.Len())
			for _, p := range c.Registry.All() {
				names[p.ID] = p.Name
			}
			if err := renderAssessments(out, names, report.Assessments); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nrun %s  date %s  points %d  degraded %d  published %t  took %s\n",
				report.RunID, report.Date.Format(domain.DateLayout), len(report.Assessments),
				report.Degraded, report.Published, report.Duration.Round(time.Millisecond))
			if err := renderLevelSummary(out, report.Assessments); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "evaluation date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish assessments to Kafka")
	return cmd
}
