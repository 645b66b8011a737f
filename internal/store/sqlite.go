package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/specwright/takeoff-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	project_id TEXT,
	org_id     TEXT NOT NULL,
	name       TEXT NOT NULL,
	trade_scope TEXT,
	status     TEXT NOT NULL DEFAULT 'uploaded',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extraction_records (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	plugin_key  TEXT NOT NULL,
	run         INTEGER NOT NULL DEFAULT 1,
	fields      TEXT NOT NULL,
	flags       TEXT,
	partial     INTEGER NOT NULL DEFAULT 0,
	confidence  REAL NOT NULL DEFAULT 0,
	superseded  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS elements (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS quotes (
	id         TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'draft',
	total      REAL NOT NULL DEFAULT 0,
	version    INTEGER NOT NULL DEFAULT 1,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS licenses (
	org_id     TEXT NOT NULL,
	plugin_key TEXT NOT NULL,
	remaining  INTEGER NOT NULL DEFAULT 0,
	expires_at DATETIME,
	PRIMARY KEY (org_id, plugin_key)
);

CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(org_id);
CREATE INDEX IF NOT EXISTS idx_records_doc_plugin ON extraction_records(document_id, plugin_key, superseded);
CREATE INDEX IF NOT EXISTS idx_elements_doc ON elements(document_id);
CREATE INDEX IF NOT EXISTS idx_quotes_org_status ON quotes(org_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = model.DocStatusUploaded
	}

	scopeJSON, err := json.Marshal(doc.TradeScope)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal trade scope")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, project_id, org_id, name, trade_scope, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ProjectID, doc.OrgID, doc.Name, string(scopeJSON), string(doc.Status), now, now,
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, org_id, name, trade_scope, status, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	)

	var doc model.Document
	var scopeJSON sql.NullString
	err := row.Scan(&doc.ID, &doc.ProjectID, &doc.OrgID, &doc.Name, &scopeJSON, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan document")
	}
	if scopeJSON.Valid && scopeJSON.String != "" {
		if err := json.Unmarshal([]byte(scopeJSON.String), &doc.TradeScope); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal trade scope")
		}
	}
	return &doc, nil
}

func (s *SQLiteStore) SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document status %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

// SaveExtractionRecord inserts the record and marks all prior records for
// the same (document, plugin) pair superseded, in one transaction.
func (s *SQLiteStore) SaveExtractionRecord(ctx context.Context, rec *model.ExtractionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	flagsJSON, err := json.Marshal(rec.Flags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal flags")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE extraction_records SET superseded = 1
		 WHERE document_id = ? AND plugin_key = ? AND superseded = 0`,
		rec.DocumentID, rec.PluginKey,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: supersede prior records")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO extraction_records (id, document_id, plugin_key, run, fields, flags, partial, confidence, superseded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.ID, rec.DocumentID, rec.PluginKey, rec.Run, string(fieldsJSON), string(flagsJSON),
		boolToInt(rec.Partial), rec.Confidence, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert extraction record")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit extraction record")
}

func (s *SQLiteStore) ListExtractionRecords(ctx context.Context, documentID string, includeSuperseded bool) ([]model.ExtractionRecord, error) {
	query := `SELECT id, document_id, plugin_key, run, fields, flags, partial, confidence, superseded, created_at
	          FROM extraction_records WHERE document_id = ?`
	if !includeSuperseded {
		query += ` AND superseded = 0`
	}
	query += ` ORDER BY plugin_key, run`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extraction records")
	}
	defer rows.Close()

	var records []model.ExtractionRecord
	for rows.Next() {
		var rec model.ExtractionRecord
		var fieldsJSON string
		var flagsJSON sql.NullString
		var partial, superseded int
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.PluginKey, &rec.Run, &fieldsJSON, &flagsJSON,
			&partial, &rec.Confidence, &superseded, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction record")
		}
		rec.Partial = partial != 0
		rec.Superseded = superseded != 0
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fields")
		}
		if flagsJSON.Valid && flagsJSON.String != "" && flagsJSON.String != "null" {
			if err := json.Unmarshal([]byte(flagsJSON.String), &rec.Flags); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal flags")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list extraction records iterate")
}

func (s *SQLiteStore) NextRunNumber(ctx context.Context, documentID, pluginKey string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(run), 0) + 1 FROM extraction_records WHERE document_id = ? AND plugin_key = ?`,
		documentID, pluginKey,
	)
	var next int
	if err := row.Scan(&next); err != nil {
		return 0, eris.Wrap(err, "sqlite: next run number")
	}
	return next, nil
}

// ReplaceElements swaps a document's element set wholesale. Normalization
// is idempotent, so the element set is always derived state.
func (s *SQLiteStore) ReplaceElements(ctx context.Context, documentID string, elements []model.Element) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE document_id = ?`, documentID); err != nil {
		return eris.Wrap(err, "sqlite: clear elements")
	}

	now := time.Now().UTC()
	for i := range elements {
		el := &elements[i]
		if el.ID == "" {
			el.ID = uuid.NewString()
		}
		if el.CreatedAt.IsZero() {
			el.CreatedAt = now
		}
		payload, err := json.Marshal(el)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal element")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO elements (id, document_id, kind, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			el.ID, documentID, el.Kind, string(payload), el.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert element")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit elements")
}

func (s *SQLiteStore) ListElements(ctx context.Context, documentID string) ([]model.Element, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM elements WHERE document_id = ? ORDER BY kind, id`, documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list elements")
	}
	defer rows.Close()

	var elements []model.Element
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan element")
		}
		var el model.Element
		if err := json.Unmarshal([]byte(payload), &el); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal element")
		}
		elements = append(elements, el)
	}
	return elements, eris.Wrap(rows.Err(), "sqlite: list elements iterate")
}

func (s *SQLiteStore) CreateQuote(ctx context.Context, q *model.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal quote")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quotes (id, org_id, status, total, version, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.OrgID, string(q.Status), q.Total, q.Version, string(payload), q.CreatedAt, q.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert quote")
}

// UpdateQuote writes the quote only if the stored version still equals
// expectedVersion. Stale writers get ErrConcurrentModification.
func (s *SQLiteStore) UpdateQuote(ctx context.Context, q *model.Quote, expectedVersion int) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal quote")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET org_id = ?, status = ?, total = ?, version = ?, payload = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		q.OrgID, string(q.Status), q.Total, q.Version, string(payload), q.UpdatedAt,
		q.ID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote %s", q.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if _, getErr := s.GetQuote(ctx, q.ID); getErr != nil {
			return getErr
		}
		return eris.Wrapf(model.ErrConcurrentModification, "sqlite: quote %s version %d", q.ID, expectedVersion)
	}
	return nil
}

func (s *SQLiteStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM quotes WHERE id = ?`, id)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: quote %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan quote")
	}

	var q model.Quote
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal quote")
	}
	return &q, nil
}

func (s *SQLiteStore) ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.Quote, error) {
	query := `SELECT payload FROM quotes WHERE 1=1`
	var args []any

	if filter.OrgID != "" {
		query += ` AND org_id = ?`
		args = append(args, filter.OrgID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quotes")
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quote")
		}
		var q model.Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal quote")
		}
		quotes = append(quotes, q)
	}
	return quotes, eris.Wrap(rows.Err(), "sqlite: list quotes iterate")
}

func (s *SQLiteStore) GrantLicense(ctx context.Context, lic model.License) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO licenses (org_id, plugin_key, remaining, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (org_id, plugin_key) DO UPDATE SET remaining = excluded.remaining, expires_at = excluded.expires_at`,
		lic.OrgID, lic.PluginKey, lic.Remaining, lic.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: grant license")
}

func (s *SQLiteStore) GetLicense(ctx context.Context, orgID, pluginKey string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT org_id, plugin_key, remaining, expires_at FROM licenses WHERE org_id = ? AND plugin_key = ?`,
		orgID, pluginKey,
	)
	var lic model.License
	err := row.Scan(&lic.OrgID, &lic.PluginKey, &lic.Remaining, &lic.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: license %s/%s", orgID, pluginKey)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan license")
	}
	return &lic, nil
}

// ConsumeUse decrements the usage counter in a single conditional UPDATE,
// so concurrent callers racing for the last unit serialize in the engine.
func (s *SQLiteStore) ConsumeUse(ctx context.Context, orgID, pluginKey string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET remaining = remaining - 1
		 WHERE org_id = ? AND plugin_key = ? AND remaining > 0
		   AND (expires_at IS NULL OR expires_at > ?)`,
		orgID, pluginKey, now.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: consume use")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		lic, getErr := s.GetLicense(ctx, orgID, pluginKey)
		if getErr != nil || lic.Expired(now) {
			return 0, model.ErrPluginNotLicensed
		}
		return 0, model.ErrQuotaExceeded
	}

	lic, err := s.GetLicense(ctx, orgID, pluginKey)
	if err != nil {
		return 0, err
	}
	return lic.Remaining, nil
}

func (s *SQLiteStore) RefundUse(ctx context.Context, orgID, pluginKey string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET remaining = remaining + 1 WHERE org_id = ? AND plugin_key = ?`,
		orgID, pluginKey,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: refund use")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return model.ErrPluginNotLicensed
	}
	return nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
