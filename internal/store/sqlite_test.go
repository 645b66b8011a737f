package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specwright/takeoff-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestDocument(t *testing.T, st *SQLiteStore) *model.Document {
	t.Helper()
	doc := &model.Document{
		OrgID:      "org-1",
		Name:       "riverside-spec.txt",
		TradeScope: []model.Trade{model.TradeMEP},
	}
	require.NoError(t, st.CreateDocument(context.Background(), doc))
	return doc
}

// --- Documents ---

func TestSQLite_Document_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	doc := createTestDocument(t, st)

	got, err := st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "riverside-spec.txt", got.Name)
	assert.Equal(t, model.DocStatusUploaded, got.Status)
	assert.Equal(t, []model.Trade{model.TradeMEP}, got.TradeScope)
}

func TestSQLite_Document_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetDocument(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSQLite_Document_SetStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	doc := createTestDocument(t, st)
	ctx := context.Background()

	require.NoError(t, st.SetDocumentStatus(ctx, doc.ID, model.DocStatusAnalyzed))

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusAnalyzed, got.Status)

	err = st.SetDocumentStatus(ctx, "nonexistent", model.DocStatusFailed)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

// --- Extraction records ---

func TestSQLite_ExtractionRecord_SupersedeOnRerun(t *testing.T) {
	st := newTestSQLiteStore(t)
	doc := createTestDocument(t, st)
	ctx := context.Background()

	first := &model.ExtractionRecord{
		DocumentID: doc.ID,
		PluginKey:  "mep.electrical_systems",
		Run:        1,
		Fields:     model.Fields{"electrical_service": model.Fields{"size": "800A"}},
		Confidence: 0.7,
	}
	require.NoError(t, st.SaveExtractionRecord(ctx, first))

	run, err := st.NextRunNumber(ctx, doc.ID, "mep.electrical_systems")
	require.NoError(t, err)
	assert.Equal(t, 2, run)

	second := &model.ExtractionRecord{
		DocumentID: doc.ID,
		PluginKey:  "mep.electrical_systems",
		Run:        run,
		Fields:     model.Fields{"electrical_service": model.Fields{"size": "1000A"}},
		Confidence: 0.9,
	}
	require.NoError(t, st.SaveExtractionRecord(ctx, second))

	current, err := st.ListExtractionRecords(ctx, doc.ID, false)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, 2, current[0].Run)
	assert.False(t, current[0].Superseded)

	all, err := st.ListExtractionRecords(ctx, doc.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Superseded)
}

func TestSQLite_ExtractionRecord_RoundTripsFlags(t *testing.T) {
	st := newTestSQLiteStore(t)
	doc := createTestDocument(t, st)
	ctx := context.Background()

	rec := &model.ExtractionRecord{
		DocumentID: doc.ID,
		PluginKey:  "mep.plumbing_systems",
		Run:        1,
		Fields:     model.Fields{"piping": model.Fields{"material": "copper"}},
		Flags: []model.FieldFlag{
			{Field: "piping.main_size_mm", Kind: model.FlagAmbiguousUnit, Detail: `3 main`},
		},
		Partial:    true,
		Confidence: 0.45,
	}
	require.NoError(t, st.SaveExtractionRecord(ctx, rec))

	got, err := st.ListExtractionRecords(ctx, doc.ID, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Partial)
	require.Len(t, got[0].Flags, 1)
	assert.Equal(t, model.FlagAmbiguousUnit, got[0].Flags[0].Kind)
}

// --- Elements ---

func TestSQLite_ReplaceElements(t *testing.T) {
	st := newTestSQLiteStore(t)
	doc := createTestDocument(t, st)
	ctx := context.Background()

	first := []model.Element{
		{Kind: "panel", Quantity: 1, Attributes: map[string]string{"rating": "800A"}, SourceRecordIDs: []string{"r1"}},
	}
	require.NoError(t, st.ReplaceElements(ctx, doc.ID, first))

	second := []model.Element{
		{Kind: "panel", Quantity: 1, Attributes: map[string]string{"rating": "1000A"}, SourceRecordIDs: []string{"r2"}},
		{Kind: "chiller", Quantity: 1, Attributes: map[string]string{"capacity_tons": "20"}, SourceRecordIDs: []string{"r3"}},
	}
	require.NoError(t, st.ReplaceElements(ctx, doc.ID, second))

	got, err := st.ListElements(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by kind.
	assert.Equal(t, "chiller", got[0].Kind)
	assert.Equal(t, "1000A", got[1].Attributes["rating"])
}

// --- Quotes ---

func TestSQLite_Quote_OptimisticVersioning(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	q := &model.Quote{
		ID:        "q-1",
		OrgID:     "org-1",
		Title:     "Riverside MEP",
		Status:    model.QuoteDraft,
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateQuote(ctx, q))

	read := q.Version
	q.Status = model.QuoteSent
	q.Version = 2
	require.NoError(t, st.UpdateQuote(ctx, q, read))

	// A writer still holding version 1 is stale now.
	q.Version = 3
	err := st.UpdateQuote(ctx, q, read)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConcurrentModification))

	got, err := st.GetQuote(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, model.QuoteSent, got.Status)
	assert.Equal(t, 2, got.Version)
}

func TestSQLite_Quote_ListByOrgAndStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, q := range []*model.Quote{
		{ID: "q-1", OrgID: "org-1", Status: model.QuoteDraft, Version: 1},
		{ID: "q-2", OrgID: "org-1", Status: model.QuoteSent, Version: 1},
		{ID: "q-3", OrgID: "org-2", Status: model.QuoteDraft, Version: 1},
	} {
		q.CreatedAt = time.Now().UTC()
		q.UpdatedAt = q.CreatedAt
		require.NoError(t, st.CreateQuote(ctx, q))
	}

	quotes, err := st.ListQuotes(ctx, QuoteFilter{OrgID: "org-1", Status: model.QuoteDraft})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "q-1", quotes[0].ID)
}

// --- Licenses ---

func TestSQLite_ConsumeUse(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.GrantLicense(ctx, model.License{
		OrgID: "org-1", PluginKey: "mep.hvac_systems", Remaining: 2,
	}))

	remaining, err := st.ConsumeUse(ctx, "org-1", "mep.hvac_systems", now)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = st.ConsumeUse(ctx, "org-1", "mep.hvac_systems", now)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = st.ConsumeUse(ctx, "org-1", "mep.hvac_systems", now)
	assert.True(t, errors.Is(err, model.ErrQuotaExceeded))

	_, err = st.ConsumeUse(ctx, "org-1", "structural.framing_analysis", now)
	assert.True(t, errors.Is(err, model.ErrPluginNotLicensed))

	require.NoError(t, st.RefundUse(ctx, "org-1", "mep.hvac_systems"))
	remaining, err = st.ConsumeUse(ctx, "org-1", "mep.hvac_systems", now)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestSQLite_ConsumeUse_ExpiredLicense(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lapsed := time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, st.GrantLicense(ctx, model.License{
		OrgID: "org-1", PluginKey: "mep.hvac_systems", Remaining: 5, ExpiresAt: &lapsed,
	}))

	_, err := st.ConsumeUse(ctx, "org-1", "mep.hvac_systems", time.Now().UTC())
	assert.True(t, errors.Is(err, model.ErrPluginNotLicensed))
}

func TestSQLite_ConsumeUse_ConcurrentLastUnit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.GrantLicense(ctx, model.License{
		OrgID: "org-1", PluginKey: "mep.electrical_systems", Remaining: 1,
	}))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.ConsumeUse(ctx, "org-1", "mep.electrical_systems", time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var allowed int
	for _, err := range errs {
		if err == nil {
			allowed++
		} else {
			assert.True(t, errors.Is(err, model.ErrQuotaExceeded))
		}
	}
	assert.Equal(t, 1, allowed)
}
