package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/rates"
	"github.com/specwright/takeoff-cli/internal/store"
)

var (
	ratesPath string
	ratesDest string
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Manage the rate book used for estimation",
}

var ratesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse a rate book file and report its contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ratesPath
		if path == "" {
			path = cfg.Rates.Path
		}
		if path == "" {
			return eris.New("no rate book: pass --path or set rates.path")
		}

		entries, err := loadRateFile(path)
		if err != nil {
			return err
		}

		defaults := 0
		for _, e := range entries {
			if e.Signature == "" || e.Signature == "default" {
				defaults++
			}
		}

		zap.L().Info("rate book parsed",
			zap.String("path", path),
			zap.Int("entries", len(entries)),
			zap.Int("default_rates", defaults),
		)
		return printJSON(entries)
	},
}

var ratesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load a rate book file into the postgres store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rates"); err != nil {
			return err
		}

		path := ratesPath
		if path == "" {
			path = cfg.Rates.Path
		}
		if path == "" {
			return eris.New("no rate book: pass --path or set rates.path")
		}

		entries, err := loadRateFile(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pg, ok := st.(*store.PostgresStore)
		if !ok {
			return eris.New("rates import requires the postgres store")
		}

		n, err := pg.ImportRates(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "import rates")
		}

		zap.L().Info("rate book imported",
			zap.String("path", path),
			zap.Int64("rows", n),
		)
		return nil
	},
}

var ratesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the supplier price book over FTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Rates.FTPURL == "" {
			return eris.New("rates.ftp_url is not configured")
		}

		dest := ratesDest
		if dest == "" {
			dest, _ = os.Getwd()
		}

		local, err := rates.FetchPriceBook(ctx, cfg.Rates.FTPURL, dest, rates.FTPOptions{
			User: cfg.Rates.FTPUser,
			Pass: cfg.Rates.FTPPass,
		})
		if err != nil {
			return eris.Wrap(err, "fetch price book")
		}

		zap.L().Info("price book fetched",
			zap.String("url", cfg.Rates.FTPURL),
			zap.String("path", local),
		)
		return nil
	},
}

func init() {
	ratesCheckCmd.Flags().StringVar(&ratesPath, "path", "", "rate book file (default from config)")
	ratesImportCmd.Flags().StringVar(&ratesPath, "path", "", "rate book file (default from config)")
	ratesFetchCmd.Flags().StringVar(&ratesDest, "dest", "", "destination directory (default: current directory)")

	ratesCmd.AddCommand(ratesCheckCmd, ratesImportCmd, ratesFetchCmd)
	rootCmd.AddCommand(ratesCmd)
}
