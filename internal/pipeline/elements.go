package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/normalize"
)

// RefreshElements folds the document's current extraction records into
// canonical elements and replaces the stored element set. Normalization is
// idempotent, so refreshing is always safe to repeat.
func (o *Orchestrator) RefreshElements(ctx context.Context, documentID string, n *normalize.Normalizer) ([]model.Element, error) {
	records, err := o.store.ListExtractionRecords(ctx, documentID, false)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load records for %s", documentID)
	}

	recs := make([]*model.ExtractionRecord, len(records))
	for i := range records {
		recs[i] = &records[i]
	}

	elements := n.Normalize(documentID, recs)
	if err := o.store.ReplaceElements(ctx, documentID, elements); err != nil {
		return nil, eris.Wrapf(err, "pipeline: store elements for %s", documentID)
	}

	zap.L().Info("pipeline: elements refreshed",
		zap.String("document_id", documentID),
		zap.Int("records", len(recs)),
		zap.Int("elements", len(elements)),
	)
	return elements, nil
}
