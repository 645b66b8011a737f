package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/estimate"
	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/quote"
	"github.com/specwright/takeoff-cli/internal/store"
)

var (
	quoteID      string
	quoteTitle   string
	quoteMarkup  float64
	quoteActor   string
	quoteFromDoc string
	quoteDesc    string
	quoteQty     float64
	quoteUnit    string
	quotePrice   float64
	quoteItemID  string
	quoteStatus  string
	quoteOut     string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Manage quote drafts and their send/accept/decline lifecycle",
}

var quoteNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a draft quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quote"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		markup := quoteMarkup
		if !cmd.Flags().Changed("markup") {
			markup = cfg.Estimate.MarkupPct
		}

		q := quote.NewWorkflow().NewDraft(cfg.License.OrgID, quoteTitle, markup)
		if err := st.CreateQuote(ctx, q); err != nil {
			return eris.Wrap(err, "create quote")
		}

		return printJSON(q)
	},
}

var quoteAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add line items to a draft quote",
	Long:  "Adds a single manual line item, or with --from-doc prices a document's elements and adds every priced line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quote"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		q, err := st.GetQuote(ctx, quoteID)
		if err != nil {
			return eris.Wrapf(err, "get quote %s", quoteID)
		}

		wf := quote.NewWorkflow()
		expected := q.Version

		if quoteFromDoc != "" {
			if err := addItemsFromDocument(ctx, st, wf, q, quoteFromDoc); err != nil {
				return err
			}
		} else {
			if quoteDesc == "" {
				return eris.New("either --from-doc or --desc is required")
			}
			item := model.QuoteItem{
				Description: quoteDesc,
				Quantity:    quoteQty,
				Unit:        quoteUnit,
				UnitPrice:   quotePrice,
			}
			if err := wf.AddItem(q, q.Version, item); err != nil {
				return eris.Wrap(err, "add item")
			}
		}

		if err := st.UpdateQuote(ctx, q, expected); err != nil {
			return eris.Wrap(err, "update quote")
		}

		return printJSON(q)
	},
}

// addItemsFromDocument prices a document's elements and appends every priced
// line to the draft. Unpriced elements are skipped with a warning.
func addItemsFromDocument(ctx context.Context, st store.Store, wf *quote.Workflow, q *model.Quote, docID string) error {
	elements, err := st.ListElements(ctx, docID)
	if err != nil {
		return eris.Wrap(err, "list elements")
	}
	if len(elements) == 0 {
		return eris.Errorf("document %s has no elements; run analyze first", docID)
	}

	table, err := loadRateTable(ctx, st)
	if err != nil {
		return err
	}

	est := estimate.NewEngine(table).Run(elements, q.MarkupPct)
	for _, line := range est.Lines {
		if line.NoRateFound {
			zap.L().Warn("skipping unpriced element",
				zap.String("element_id", line.ElementID),
				zap.String("kind", line.Kind),
			)
			continue
		}
		if err := wf.AddItem(q, q.Version, quote.ItemFromLine(line)); err != nil {
			return eris.Wrap(err, "add item")
		}
	}
	return nil
}

var quoteRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a line item from a draft quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQuote(cmd.Context(), func(wf *quote.Workflow, q *model.Quote) error {
			return wf.RemoveItem(q, q.Version, quoteItemID)
		})
	},
}

var quoteMarkupCmd = &cobra.Command{
	Use:   "markup",
	Short: "Set the markup percentage on a draft quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQuote(cmd.Context(), func(wf *quote.Workflow, q *model.Quote) error {
			return wf.SetMarkup(q, q.Version, quoteMarkup)
		})
	},
}

var quoteSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a draft quote to the client",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQuote(cmd.Context(), func(wf *quote.Workflow, q *model.Quote) error {
			return wf.Send(q, q.Version, quoteActor)
		})
	},
}

var quoteAcceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Record client acceptance of a sent quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQuote(cmd.Context(), func(wf *quote.Workflow, q *model.Quote) error {
			return wf.Accept(q, q.Version, quoteActor)
		})
	},
}

var quoteDeclineCmd = &cobra.Command{
	Use:   "decline",
	Short: "Record client decline of a sent quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQuote(cmd.Context(), func(wf *quote.Workflow, q *model.Quote) error {
			return wf.Decline(q, q.Version, quoteActor)
		})
	},
}

var quoteReviseCmd = &cobra.Command{
	Use:   "revise",
	Short: "Open a fresh draft copied from an existing quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quote"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		q, err := st.GetQuote(ctx, quoteID)
		if err != nil {
			return eris.Wrapf(err, "get quote %s", quoteID)
		}

		draft := quote.NewWorkflow().ReviseDraft(q)
		if err := st.CreateQuote(ctx, draft); err != nil {
			return eris.Wrap(err, "create revised quote")
		}

		return printJSON(draft)
	},
}

var quoteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quote"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		q, err := st.GetQuote(ctx, quoteID)
		if err != nil {
			return eris.Wrapf(err, "get quote %s", quoteID)
		}

		return printJSON(q)
	},
}

var quoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quotes for the configured organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quote"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		quotes, err := st.ListQuotes(ctx, store.QuoteFilter{
			OrgID:  cfg.License.OrgID,
			Status: model.QuoteStatus(quoteStatus),
		})
		if err != nil {
			return eris.Wrap(err, "list quotes")
		}

		return printJSON(quotes)
	},
}

var quoteExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a sent or closed quote as a JSON snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quote"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		q, err := st.GetQuote(ctx, quoteID)
		if err != nil {
			return eris.Wrapf(err, "get quote %s", quoteID)
		}

		export, err := quote.BuildExport(q, time.Now().UTC())
		if err != nil {
			return err
		}

		out, err := export.MarshalIndent()
		if err != nil {
			return err
		}

		if quoteOut != "" {
			if err := os.WriteFile(quoteOut, out, 0644); err != nil {
				return eris.Wrapf(err, "write %s", quoteOut)
			}
			zap.L().Info("quote exported", zap.String("quote_id", q.ID), zap.String("path", quoteOut))
			return nil
		}

		_, err = os.Stdout.Write(append(out, '\n'))
		return err
	},
}

// mutateQuote loads a quote, applies fn, and saves it back with optimistic
// version checking.
func mutateQuote(ctx context.Context, fn func(*quote.Workflow, *model.Quote) error) error {
	if err := cfg.Validate("quote"); err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := st.GetQuote(ctx, quoteID)
	if err != nil {
		return eris.Wrapf(err, "get quote %s", quoteID)
	}

	expected := q.Version
	if err := fn(quote.NewWorkflow(), q); err != nil {
		return err
	}
	if err := st.UpdateQuote(ctx, q, expected); err != nil {
		return eris.Wrap(err, "update quote")
	}

	return printJSON(q)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	quoteNewCmd.Flags().StringVar(&quoteTitle, "title", "", "quote title (required)")
	quoteNewCmd.Flags().Float64Var(&quoteMarkup, "markup", 0, "markup percentage (default from config)")
	_ = quoteNewCmd.MarkFlagRequired("title")

	quoteAddCmd.Flags().StringVar(&quoteID, "id", "", "quote ID (required)")
	quoteAddCmd.Flags().StringVar(&quoteFromDoc, "from-doc", "", "price a document's elements and add every line")
	quoteAddCmd.Flags().StringVar(&quoteDesc, "desc", "", "manual item description")
	quoteAddCmd.Flags().Float64Var(&quoteQty, "qty", 1, "manual item quantity")
	quoteAddCmd.Flags().StringVar(&quoteUnit, "unit", "ea", "manual item unit")
	quoteAddCmd.Flags().Float64Var(&quotePrice, "price", 0, "manual item unit price")
	_ = quoteAddCmd.MarkFlagRequired("id")

	quoteRemoveCmd.Flags().StringVar(&quoteID, "id", "", "quote ID (required)")
	quoteRemoveCmd.Flags().StringVar(&quoteItemID, "item", "", "item ID (required)")
	_ = quoteRemoveCmd.MarkFlagRequired("id")
	_ = quoteRemoveCmd.MarkFlagRequired("item")

	quoteMarkupCmd.Flags().StringVar(&quoteID, "id", "", "quote ID (required)")
	quoteMarkupCmd.Flags().Float64Var(&quoteMarkup, "pct", 0, "markup percentage (required)")
	_ = quoteMarkupCmd.MarkFlagRequired("id")
	_ = quoteMarkupCmd.MarkFlagRequired("pct")

	for _, c := range []*cobra.Command{quoteSendCmd, quoteAcceptCmd, quoteDeclineCmd} {
		c.Flags().StringVar(&quoteID, "id", "", "quote ID (required)")
		c.Flags().StringVar(&quoteActor, "actor", "cli", "who performed the action")
		_ = c.MarkFlagRequired("id")
	}

	quoteReviseCmd.Flags().StringVar(&quoteID, "id", "", "quote ID (required)")
	_ = quoteReviseCmd.MarkFlagRequired("id")

	quoteShowCmd.Flags().StringVar(&quoteID, "id", "", "quote ID (required)")
	_ = quoteShowCmd.MarkFlagRequired("id")

	quoteListCmd.Flags().StringVar(&quoteStatus, "status", "", "filter by status (draft, sent, accepted, declined)")

	quoteExportCmd.Flags().StringVar(&quoteID, "id", "", "quote ID (required)")
	quoteExportCmd.Flags().StringVarP(&quoteOut, "out", "o", "", "write the export to a file instead of stdout")
	_ = quoteExportCmd.MarkFlagRequired("id")

	quoteCmd.AddCommand(quoteNewCmd, quoteAddCmd, quoteRemoveCmd, quoteMarkupCmd,
		quoteSendCmd, quoteAcceptCmd, quoteDeclineCmd, quoteReviseCmd,
		quoteShowCmd, quoteListCmd, quoteExportCmd)
	rootCmd.AddCommand(quoteCmd)
}
