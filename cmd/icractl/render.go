package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/icra-risk-service/internal/artifacts"
	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var levelColors = map[domain.Color]*color.Color{
	domain.ColorVerde:          color.New(color.FgGreen),
	domain.ColorAmarelo:        color.New(color.FgYellow),
	domain.ColorVermelho:       color.New(color.FgRed),
	domain.ColorVermelhoEscuro: color.New(color.FgHiRed, color.Bold),
	domain.ColorCinza:          color.New(color.FgHiBlack),
}

func colorize(c domain.Color, s string) string {
	if p, ok := levelColors[c]; ok {
		return p.Sprint(s)
	}
	return s
}

func formatScore(a domain.RiskAssessment) string {
	if a.Degraded() {
		return "-"
	}
	return strconv.FormatFloat(a.Score, 'f', 3, 64)
}

func formatStd(a domain.RiskAssessment) string {
	if a.Uncertainty == nil {
		return "-"
	}
	return strconv.FormatFloat(*a.Uncertainty, 'f', 3, 64)
}

// renderAssessments writes one row per assessment. names maps point ids to
// display names.
func renderAssessments(w io.Writer, names map[string]string, assessments []domain.RiskAssessment) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Ponto", "Local", "ICRA", "Std", "Nível", "Confiança", "Motivo"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	rows := make([][]string, 0, len(assessments))
	for _, a := range assessments {
		rows = append(rows, []string{
			a.PointID,
			names[a.PointID],
			formatScore(a),
			formatStd(a),
			colorize(a.Color, string(a.Level)),
			string(a.Confidence),
			a.Reason,
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// renderLevelSummary writes the count of assessments per level.
func renderLevelSummary(w io.Writer, assessments []domain.RiskAssessment) error {
	order := []domain.RiskLevel{
		domain.LevelBaixo, domain.LevelModerado, domain.LevelAlto, domain.LevelMuitoAlto, domain.LevelIndisponivel,
	}
	counts := make(map[domain.RiskLevel]int, len(order))
	for _, a := range assessments {
		counts[a.Level]++
	}
	for _, level := range order {
		if n := counts[level]; n > 0 {
			if _, err := fmt.Fprintf(w, "  %-14s %d\n", level, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderBundle writes a bundle summary.
func renderBundle(w io.Writer, info artifacts.Info) error {
	model := info.LocalModel
	if model == "" {
		model = "(none)"
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Campo", "Valor"})
	rows := [][]string{
		{"versao", info.Version},
		{"features", strconv.Itoa(len(info.Features))},
		{"baixo_max", strconv.FormatFloat(info.Thresholds.BaixoMax, 'f', -1, 64)},
		{"moderado_max", strconv.FormatFloat(info.Thresholds.ModeradoMax, 'f', -1, 64)},
		{"alto_max", strconv.FormatFloat(info.Thresholds.AltoMax, 'f', -1, 64)},
		{"modelo_local", model},
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
