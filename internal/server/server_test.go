package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specwright/takeoff-cli/internal/analyzer"
	"github.com/specwright/takeoff-cli/internal/license"
	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/normalize"
	"github.com/specwright/takeoff-cli/internal/pipeline"
	"github.com/specwright/takeoff-cli/internal/plugin"
	"github.com/specwright/takeoff-cli/internal/quote"
	"github.com/specwright/takeoff-cli/internal/store"
)

const electricalSpec = `ELECTRICAL SPECIFICATIONS:
- Service: 1000A, 480V/277V, 3-phase, 4-wire
- Main Distribution: Panel MDP-1, 1000A, 480V/277V`

type fixture struct {
	st  store.Store
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg, err := plugin.NewRegistry(analyzer.All()...)
	require.NoError(t, err)

	for _, key := range reg.Keys() {
		require.NoError(t, st.GrantLicense(context.Background(), model.License{
			OrgID:     "org-1",
			PluginKey: key,
			Remaining: 10,
		}))
	}

	orch := pipeline.New(reg, license.New(st), st, pipeline.Options{Concurrency: 2})
	srv := httptest.NewServer(New(st, reg, orch, normalize.New(reg), "org-1").Router())
	t.Cleanup(srv.Close)

	return &fixture{st: st, srv: srv}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestPluginCatalog(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/plugins")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	descs := decode[[]plugin.Descriptor](t, resp)
	assert.Len(t, descs, 5)
}

func TestAnalyzeDocument(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/documents", map[string]any{
		"name":        "electrical-spec.txt",
		"trade_scope": []string{"mep"},
		"text":        electricalSpec,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[analyzeResponse](t, resp)
	assert.Equal(t, model.DocStatusAnalyzed, body.Document.Status)
	assert.Len(t, body.Result.Records, 3) // all mep plugins ran
	assert.NotEmpty(t, body.Elements)

	// Document and elements are retrievable afterward.
	resp = f.get(t, "/api/documents/"+body.Document.ID+"/elements")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	elements := decode[[]model.Element](t, resp)
	assert.Len(t, elements, len(body.Elements))
}

func TestAnalyzeDocument_BadRequest(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/documents", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.postJSON(t, "/api/documents", map[string]any{
		"name":        "x",
		"text":        "y",
		"trade_scope": []string{"landscaping"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetDocument_NotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/documents/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestExportQuote(t *testing.T) {
	f := newFixture(t)

	wf := quote.NewWorkflow()
	q := wf.NewDraft("org-1", "Office Fit-Out", 10)
	require.NoError(t, f.st.CreateQuote(context.Background(), q))

	// Drafts are not exportable.
	resp := f.get(t, "/api/quotes/" + q.ID + "/export")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	expected := q.Version
	require.NoError(t, wf.AddItem(q, q.Version, model.QuoteItem{
		Description: "Panel MDP-1",
		Quantity:    1,
		Unit:        "ea",
		UnitPrice:   4200,
	}))
	require.NoError(t, wf.Send(q, q.Version, "tester"))
	require.NoError(t, f.st.UpdateQuote(context.Background(), q, expected))

	resp = f.get(t, "/api/quotes/" + q.ID + "/export")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	export := decode[quote.Export](t, resp)
	assert.Equal(t, q.ID, export.QuoteID)
	assert.Equal(t, model.QuoteSent, export.Status)
	assert.InDelta(t, 4620.0, export.Total, 0.001)
}

func TestGetQuote_NotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/quotes/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
