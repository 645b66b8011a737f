package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/estimate"
	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/rates"
	"github.com/specwright/takeoff-cli/internal/store"
)

var (
	estimateDocID  string
	estimateMarkup float64
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Price the takeoff elements of an analyzed document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("estimate"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		elements, err := st.ListElements(ctx, estimateDocID)
		if err != nil {
			return eris.Wrap(err, "list elements")
		}
		if len(elements) == 0 {
			return eris.Errorf("document %s has no elements; run analyze first", estimateDocID)
		}

		table, err := loadRateTable(ctx, st)
		if err != nil {
			return err
		}

		markup := estimateMarkup
		if !cmd.Flags().Changed("markup") {
			markup = cfg.Estimate.MarkupPct
		}

		engine := estimate.NewEngine(table).
			WithOverhead(cfg.Estimate.OverheadPct, cfg.Estimate.ProfitPct)
		est := engine.Run(elements, markup)

		zap.L().Info("estimate complete",
			zap.String("document_id", estimateDocID),
			zap.Int("lines", len(est.Lines)),
			zap.Int("unpriced", est.Unpriced),
			zap.Float64("total", est.Total),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(est)
	},
}

// loadRateTable loads the rate book from the configured file, or from the
// rate_entries table when running against Postgres with no file configured.
func loadRateTable(ctx context.Context, st store.Store) (*rates.Table, error) {
	if cfg.Rates.Path != "" {
		entries, err := loadRateFile(cfg.Rates.Path)
		if err != nil {
			return nil, err
		}
		return rates.NewTable(entries), nil
	}

	if pg, ok := st.(*store.PostgresStore); ok {
		entries, err := pg.LoadRates(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "load rates from store")
		}
		return rates.NewTable(entries), nil
	}

	return nil, eris.New("no rate book configured: set rates.path or use the postgres store")
}

func loadRateFile(path string) ([]model.RateEntry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return rates.LoadYAML(path)
	case ".xlsx":
		return rates.LoadXLSX(path, rates.XLSXOptions{
			SheetName: cfg.Rates.SheetName,
			SkipRows:  cfg.Rates.SkipRows,
		})
	default:
		return nil, eris.Errorf("unsupported rate book format: %s", path)
	}
}

func init() {
	estimateCmd.Flags().StringVar(&estimateDocID, "doc", "", "document ID (required)")
	estimateCmd.Flags().Float64Var(&estimateMarkup, "markup", 0, "markup percentage (default from config)")
	_ = estimateCmd.MarkFlagRequired("doc")
	rootCmd.AddCommand(estimateCmd)
}
