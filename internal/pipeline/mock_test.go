package pipeline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/store"
)

// memStore is an in-memory store.Store for orchestrator tests.
type memStore struct {
	mu        sync.Mutex
	documents map[string]*model.Document
	records   []model.ExtractionRecord
	elements  map[string][]model.Element
	quotes    map[string]*model.Quote
	licenses  map[string]*model.License
}

func newMemStore() *memStore {
	return &memStore{
		documents: make(map[string]*model.Document),
		elements:  make(map[string][]model.Element),
		quotes:    make(map[string]*model.Quote),
		licenses:  make(map[string]*model.License),
	}
}

var _ store.Store = (*memStore)(nil)

func (m *memStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = doc
	return nil
}

func (m *memStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return model.ErrNotFound
	}
	doc.Status = status
	return nil
}

func (m *memStore) SaveExtractionRecord(ctx context.Context, rec *model.ExtractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = rec.PluginKey + "-run" + strconv.Itoa(rec.Run)
	}
	for i := range m.records {
		r := &m.records[i]
		if r.DocumentID == rec.DocumentID && r.PluginKey == rec.PluginKey && !r.Superseded {
			r.Superseded = true
		}
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *memStore) ListExtractionRecords(ctx context.Context, documentID string, includeSuperseded bool) ([]model.ExtractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExtractionRecord
	for _, r := range m.records {
		if r.DocumentID != documentID {
			continue
		}
		if r.Superseded && !includeSuperseded {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) NextRunNumber(ctx context.Context, documentID, pluginKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, r := range m.records {
		if r.DocumentID == documentID && r.PluginKey == pluginKey && r.Run > max {
			max = r.Run
		}
	}
	return max + 1, nil
}

func (m *memStore) ReplaceElements(ctx context.Context, documentID string, elements []model.Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elements[documentID] = elements
	return nil
}

func (m *memStore) ListElements(ctx context.Context, documentID string) ([]model.Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elements[documentID], nil
}

func (m *memStore) CreateQuote(ctx context.Context, q *model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.ID] = q
	return nil
}

func (m *memStore) UpdateQuote(ctx context.Context, q *model.Quote, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.quotes[q.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return model.ErrConcurrentModification
	}
	m.quotes[q.ID] = q
	return nil
}

func (m *memStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return q, nil
}

func (m *memStore) ListQuotes(ctx context.Context, filter store.QuoteFilter) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Quote
	for _, q := range m.quotes {
		if filter.OrgID != "" && q.OrgID != filter.OrgID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		out = append(out, *q)
	}
	return out, nil
}

func (m *memStore) GrantLicense(ctx context.Context, lic model.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := lic
	m.licenses[lic.OrgID+"/"+lic.PluginKey] = &l
	return nil
}

func (m *memStore) GetLicense(ctx context.Context, orgID, pluginKey string) (*model.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lic, ok := m.licenses[orgID+"/"+pluginKey]
	if !ok {
		return nil, model.ErrNotFound
	}
	return lic, nil
}

func (m *memStore) ConsumeUse(ctx context.Context, orgID, pluginKey string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lic, ok := m.licenses[orgID+"/"+pluginKey]
	if !ok || lic.Expired(now) {
		return 0, model.ErrPluginNotLicensed
	}
	if lic.Remaining <= 0 {
		return 0, model.ErrQuotaExceeded
	}
	lic.Remaining--
	return lic.Remaining, nil
}

func (m *memStore) RefundUse(ctx context.Context, orgID, pluginKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lic, ok := m.licenses[orgID+"/"+pluginKey]
	if !ok {
		return model.ErrPluginNotLicensed
	}
	lic.Remaining++
	return nil
}

func (m *memStore) remaining(orgID, pluginKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lic, ok := m.licenses[orgID+"/"+pluginKey]; ok {
		return lic.Remaining
	}
	return -1
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Close() error                      { return nil }

