// Package render serializes the audit report and conflict log for output.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/tribunal/internal/schema"
)

// output bundles the report with the conflict log for machine consumption.
type output struct {
	Report    schema.AuditReport      `json:"report"`
	Conflicts []schema.ConflictRecord `json:"conflicts"`
}

// JSON renders the report and conflicts as indented JSON.
func JSON(report schema.AuditReport, conflicts []schema.ConflictRecord) (string, error) {
	b, err := json.MarshalIndent(output{Report: report, Conflicts: conflicts}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render: marshal report: %w", err)
	}
	return string(b), nil
}

// Markdown renders the report as a human-readable document.
func Markdown(report schema.AuditReport, conflicts []schema.ConflictRecord) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Audit Report\n\n")
	fmt.Fprintf(&sb, "- **Run:** %s\n", report.RunID)
	fmt.Fprintf(&sb, "- **Repository:** %s\n", report.RepoRef)
	fmt.Fprintf(&sb, "- **Overall score:** %.2f / 5\n\n", report.OverallScore)

	fmt.Fprintf(&sb, "## Executive Summary\n\n%s\n\n", report.ExecutiveSummary)

	sb.WriteString("## Criteria\n\n")
	sb.WriteString("| Criterion | Score | Dissent |\n")
	sb.WriteString("|-----------|-------|---------|\n")
	for _, c := range report.Criteria {
		dissent := ""
		if c.DissentSummary != "" {
			dissent = "yes"
		}
		fmt.Fprintf(&sb, "| %s | %d | %s |\n", c.DimensionName, c.FinalScore, dissent)
	}
	sb.WriteString("\n")

	for _, c := range report.Criteria {
		fmt.Fprintf(&sb, "### %s\n\n", c.DimensionName)
		for _, op := range c.Opinions {
			fmt.Fprintf(&sb, "- **%s** (%d/5): %s\n", op.Judge, op.Score, op.Argument)
		}
		if c.DissentSummary != "" {
			fmt.Fprintf(&sb, "\n> %s\n", c.DissentSummary)
		}
		sb.WriteString("\n")
	}

	if len(conflicts) > 0 {
		sb.WriteString("## Conflict Log\n\n")
		for _, c := range conflicts {
			dim := c.Dimension
			if dim == "" {
				dim = "run"
			}
			fmt.Fprintf(&sb, "- `%s` [%s] (%s): %s\n", c.Kind, c.Severity, dim, c.Description)
		}
		sb.WriteString("\n")
	}

	if report.RemediationPlan != "" {
		fmt.Fprintf(&sb, "## Remediation Plan\n\n")
		for _, line := range strings.Split(report.RemediationPlan, "\n") {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}

	return sb.String()
}
