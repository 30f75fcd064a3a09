// Command tribunal audits a code submission and its report document against
// an evaluation rubric, producing a scored report with a conflict log.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/audit"
	"github.com/dshills/tribunal/internal/detective"
	"github.com/dshills/tribunal/internal/llm"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/render"
	"github.com/dshills/tribunal/internal/rubric"
	"github.com/dshills/tribunal/internal/schema"
)

var (
	flagRepo         string
	flagDoc          string
	flagRubric       string
	flagProvider     string
	flagModel        string
	flagVisionModel  string
	flagFormat       string
	flagOutput       string
	flagMaxTokens    int
	flagTemperature  float64
	flagCloneTimeout time.Duration
	flagLogLevel     string
	flagLogFormat    string
)

func main() {
	root := &cobra.Command{
		Use:           "tribunal",
		Short:         "Multi-perspective audit engine for code submissions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.Init(flagLogLevel, flagLogFormat)
		},
	}
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(auditCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run a full audit of a repository and its report",
		RunE:  runAudit,
	}
	cmd.Flags().StringVar(&flagRepo, "repo", "", "git URL or path of the submission repository")
	cmd.Flags().StringVar(&flagDoc, "doc", "", "path to the report document (PDF)")
	cmd.Flags().StringVar(&flagRubric, "rubric", "", "path to a YAML rubric (default: built-in rubric)")
	cmd.Flags().StringVar(&flagProvider, "provider", "anthropic", "reasoning provider (anthropic, openai, google)")
	cmd.Flags().StringVar(&flagModel, "model", "claude-sonnet-4-20250514", "reasoning model name")
	cmd.Flags().StringVar(&flagVisionModel, "vision-model", "", "multimodal model for diagram analysis (empty disables the vision lane)")
	cmd.Flags().StringVar(&flagFormat, "format", "markdown", "output format (markdown, json)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().IntVar(&flagMaxTokens, "max-tokens", 2048, "max tokens per opinion request")
	cmd.Flags().Float64Var(&flagTemperature, "temperature", 0.2, "sampling temperature for opinion requests")
	cmd.Flags().DurationVar(&flagCloneTimeout, "clone-timeout", 2*time.Minute, "wall-clock budget for the sandboxed clone")
	return cmd
}

func runAudit(cmd *cobra.Command, _ []string) error {
	if flagRepo == "" && flagDoc == "" {
		return fmt.Errorf("at least one of --repo and --doc is required")
	}

	dims, err := loadRubric()
	if err != nil {
		return err
	}

	cfg := detective.DefaultConfig()
	cfg.CloneTimeout = flagCloneTimeout
	if flagVisionModel != "" {
		cfg.Analyzer = detective.GeminiDiagramAnalyzer{Model: flagVisionModel}
	}

	res, err := audit.Run(cmd.Context(), audit.Options{
		RepoRef:    flagRepo,
		DocPath:    flagDoc,
		Dimensions: dims,
		Detective:  cfg,
		LLM: llm.Options{
			Provider:    flagProvider,
			Model:       flagModel,
			MaxTokens:   flagMaxTokens,
			Temperature: flagTemperature,
		},
	})
	if err != nil {
		return err
	}

	out, err := formatResult(res)
	if err != nil {
		return err
	}
	if flagOutput != "" {
		if err := os.WriteFile(flagOutput, []byte(out), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func loadRubric() ([]schema.DimensionSpec, error) {
	if flagRubric == "" {
		return rubric.Builtin(), nil
	}
	return rubric.Load(flagRubric)
}

func formatResult(res audit.Result) (string, error) {
	switch flagFormat {
	case "json":
		return render.JSON(res.Report, res.Conflicts)
	case "markdown":
		return render.Markdown(res.Report, res.Conflicts), nil
	}
	return "", fmt.Errorf("unknown output format %q", flagFormat)
}
