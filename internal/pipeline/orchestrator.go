// Package pipeline orchestrates extraction runs: it scopes the eligible
// plugin set, enforces licensing, fans plugin invocations out in parallel,
// and persists the resulting records. Individual plugin failures never
// abort the batch.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/specwright/takeoff-cli/internal/license"
	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
	"github.com/specwright/takeoff-cli/internal/store"
)

// DefaultMaxDocumentBytes bounds input size. Oversized documents are
// rejected outright, never truncated.
const DefaultMaxDocumentBytes = 2 << 20

// PluginRunState classifies the outcome of one plugin invocation.
type PluginRunState string

const (
	RunComplete PluginRunState = "complete"
	RunFailed   PluginRunState = "failed"
	RunDenied   PluginRunState = "denied"
	RunSkipped  PluginRunState = "skipped"
)

// PluginStatus reports one plugin's outcome within a batch.
type PluginStatus struct {
	PluginKey string         `json:"plugin_key"`
	State     PluginRunState `json:"state"`
	RecordID  string         `json:"record_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  int64          `json:"duration_ms"`
}

// Result is a batch outcome: the records produced plus per-plugin status.
// Partial is set when some but not all eligible plugins produced a record;
// the caller decides whether partial coverage is acceptable.
type Result struct {
	DocumentID string                    `json:"document_id"`
	Records    []*model.ExtractionRecord `json:"records"`
	Statuses   []PluginStatus            `json:"statuses"`
	Partial    bool                      `json:"partial"`
}

// Options tunes the orchestrator.
type Options struct {
	// Concurrency bounds parallel plugin invocations. Zero means the
	// batch runs with a limit of 4.
	Concurrency int

	// MaxDocumentBytes rejects documents over this size. Zero applies
	// DefaultMaxDocumentBytes.
	MaxDocumentBytes int
}

// Orchestrator runs extraction batches. Safe for concurrent use across
// documents; concurrent runs for the same (document, plugin) pair are
// rejected with ErrAnalysisInProgress rather than queued.
type Orchestrator struct {
	registry   *plugin.Registry
	gatekeeper *license.Gatekeeper
	store      store.Store
	opts       Options

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates an Orchestrator.
func New(reg *plugin.Registry, gk *license.Gatekeeper, st store.Store, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	return &Orchestrator{
		registry:   reg,
		gatekeeper: gk,
		store:      st,
		opts:       opts,
		inflight:   make(map[string]bool),
	}
}

// Analyze runs every eligible plugin over the document text and collects
// the results. Cancelling ctx stops scheduling of not-yet-started plugins;
// in-flight invocations finish and their records persist, so no partial
// record is orphaned.
func (o *Orchestrator) Analyze(ctx context.Context, doc *model.Document, text string) (*Result, error) {
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("org_id", doc.OrgID))

	if len(text) > o.opts.MaxDocumentBytes {
		return nil, eris.Wrapf(model.ErrDocumentTooLarge,
			"pipeline: document %s is %d bytes, max %d", doc.ID, len(text), o.opts.MaxDocumentBytes)
	}

	plugins := o.registry.ByTrade(doc.TradeScope...)
	if len(plugins) == 0 {
		return &Result{DocumentID: doc.ID}, nil
	}

	if err := o.store.SetDocumentStatus(ctx, doc.ID, model.DocStatusAnalyzing); err != nil {
		log.Warn("pipeline: failed to mark analyzing", zap.Error(err))
	}
	log.Info("pipeline: starting extraction batch", zap.Int("plugins", len(plugins)))

	var (
		resultMu sync.Mutex
		result   = &Result{DocumentID: doc.ID}
	)
	record := func(st PluginStatus, rec *model.ExtractionRecord) {
		resultMu.Lock()
		defer resultMu.Unlock()
		result.Statuses = append(result.Statuses, st)
		if rec != nil {
			result.Records = append(result.Records, rec)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)

	for _, p := range plugins {
		// Cancellation stops scheduling; started plugins run to
		// completion below.
		if ctx.Err() != nil {
			record(PluginStatus{
				PluginKey: p.Descriptor().Key,
				State:     RunSkipped,
				Error:     ctx.Err().Error(),
			}, nil)
			continue
		}

		g.Go(func() error {
			st, rec := o.runPlugin(ctx, doc, p, text)
			record(st, rec)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-plugin outcomes land in statuses

	sort.Slice(result.Statuses, func(i, j int) bool {
		return result.Statuses[i].PluginKey < result.Statuses[j].PluginKey
	})
	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].PluginKey < result.Records[j].PluginKey
	})

	var complete int
	for _, st := range result.Statuses {
		if st.State == RunComplete {
			complete++
		}
	}
	result.Partial = complete > 0 && complete < len(plugins)

	status := model.DocStatusAnalyzed
	switch {
	case complete == 0:
		status = model.DocStatusFailed
	case result.Partial:
		status = model.DocStatusPartial
	}
	// Persist final status even when the caller has cancelled.
	if err := o.store.SetDocumentStatus(context.WithoutCancel(ctx), doc.ID, status); err != nil {
		log.Warn("pipeline: failed to mark final status", zap.Error(err))
	}

	log.Info("pipeline: extraction batch finished",
		zap.Int("complete", complete),
		zap.Int("eligible", len(plugins)),
		zap.Bool("partial", result.Partial),
	)
	return result, nil
}

// runPlugin executes one plugin with licensing, in-flight serialization,
// and record persistence.
func (o *Orchestrator) runPlugin(ctx context.Context, doc *model.Document, p plugin.Analyzer, text string) (PluginStatus, *model.ExtractionRecord) {
	key := p.Descriptor().Key
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("plugin_key", key))
	start := time.Now()

	status := func(state PluginRunState, err error) PluginStatus {
		ps := PluginStatus{PluginKey: key, State: state, Duration: time.Since(start).Milliseconds()}
		if err != nil {
			ps.Error = err.Error()
		}
		return ps
	}

	if !o.acquire(doc.ID, key) {
		return status(RunSkipped, eris.Wrapf(model.ErrAnalysisInProgress, "pipeline: %s on %s", key, doc.ID)), nil
	}
	defer o.release(doc.ID, key)

	if err := o.gatekeeper.CheckAndConsume(ctx, doc.OrgID, key); err != nil {
		return status(RunDenied, err), nil
	}

	// A failed run consumed quota but produced no record; give the unit back.
	refund := func() {
		if refundErr := o.gatekeeper.Refund(context.WithoutCancel(ctx), doc.OrgID, key); refundErr != nil {
			log.Warn("pipeline: refund failed", zap.Error(refundErr))
		}
	}

	rec, err := p.Analyze(ctx, text)
	if err != nil {
		refund()
		log.Warn("pipeline: plugin failed", zap.Error(err))
		return status(RunFailed, err), nil
	}

	// An in-flight run finishes its persistence even after cancellation.
	persistCtx := context.WithoutCancel(ctx)

	rec.DocumentID = doc.ID
	run, err := o.store.NextRunNumber(persistCtx, doc.ID, key)
	if err != nil {
		refund()
		return status(RunFailed, err), nil
	}
	rec.Run = run

	if err := o.store.SaveExtractionRecord(persistCtx, rec); err != nil {
		refund()
		return status(RunFailed, err), nil
	}

	log.Info("pipeline: plugin complete",
		zap.Int("run", rec.Run),
		zap.Float64("confidence", rec.Confidence),
		zap.Bool("partial", rec.Partial),
	)
	ps := status(RunComplete, nil)
	ps.RecordID = rec.ID
	return ps, rec
}

func (o *Orchestrator) acquire(docID, pluginKey string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := docID + "/" + pluginKey
	if o.inflight[k] {
		return false
	}
	o.inflight[k] = true
	return true
}

func (o *Orchestrator) release(docID, pluginKey string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, docID+"/"+pluginKey)
}
