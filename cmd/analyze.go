package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/analyzer"
	"github.com/specwright/takeoff-cli/internal/license"
	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/normalize"
	"github.com/specwright/takeoff-cli/internal/pipeline"
	"github.com/specwright/takeoff-cli/internal/plugin"
	"github.com/specwright/takeoff-cli/pkg/docsource"
)

var (
	analyzeDoc     string
	analyzeProject string
	analyzeName    string
	analyzeTrades  []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run trade analyzer plugins over a specification document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		reg, err := plugin.NewRegistry(analyzer.All()...)
		if err != nil {
			return eris.Wrap(err, "build registry")
		}

		scope, err := parseTrades(analyzeTrades)
		if err != nil {
			return err
		}

		name := analyzeName
		if name == "" {
			name = filepath.Base(analyzeDoc)
		}

		now := time.Now().UTC()
		doc := &model.Document{
			ID:         uuid.NewString(),
			ProjectID:  analyzeProject,
			OrgID:      cfg.License.OrgID,
			Name:       name,
			TradeScope: scope,
			Status:     model.DocStatusUploaded,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := st.CreateDocument(ctx, doc); err != nil {
			return eris.Wrap(err, "create document")
		}

		text, err := initDocSource().Text(ctx, analyzeDoc)
		if err != nil {
			return err
		}

		orch := pipeline.New(reg, license.New(st), st, pipeline.Options{
			Concurrency:      cfg.Pipeline.Concurrency,
			MaxDocumentBytes: cfg.Pipeline.MaxDocumentBytes,
		})

		result, err := orch.Analyze(ctx, doc, text)
		if err != nil {
			return eris.Wrap(err, "analyze document")
		}

		elements, err := orch.RefreshElements(ctx, doc.ID, normalize.New(reg))
		if err != nil {
			return eris.Wrap(err, "normalize elements")
		}

		zap.L().Info("analysis complete",
			zap.String("document_id", doc.ID),
			zap.Int("records", len(result.Records)),
			zap.Int("elements", len(elements)),
			zap.Bool("partial", result.Partial),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// initDocSource picks the document source. With an Anthropic key configured,
// non-text formats get the LLM cleanup pass; otherwise files are read as-is.
func initDocSource() docsource.Source {
	if cfg.Anthropic.Key != "" {
		client := docsource.NewSDKClient(docsource.SDKOptions{
			APIKey:    cfg.Anthropic.Key,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
		return docsource.NewLLMSource(client, cfg.Anthropic.Model, cfg.Anthropic.RPS)
	}
	return docsource.NewFileSource()
}

func parseTrades(raw []string) ([]model.Trade, error) {
	trades := make([]model.Trade, 0, len(raw))
	for _, s := range raw {
		t, err := model.ParseTrade(s)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDoc, "doc", "", "path to the specification document (required)")
	analyzeCmd.Flags().StringVar(&analyzeProject, "project", "", "project ID")
	analyzeCmd.Flags().StringVar(&analyzeName, "name", "", "document name (default: file name)")
	analyzeCmd.Flags().StringSliceVar(&analyzeTrades, "trades", nil, "trade scope, e.g. mep,structural (default: all trades)")
	_ = analyzeCmd.MarkFlagRequired("doc")
	rootCmd.AddCommand(analyzeCmd)
}
