package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/specwright/takeoff-cli/internal/db"
	"github.com/specwright/takeoff-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_document": `INSERT INTO documents (id, project_id, org_id, name, trade_scope, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_document":    `SELECT id, project_id, org_id, name, trade_scope, status, created_at, updated_at FROM documents WHERE id = $1`,
	"insert_record":   `INSERT INTO extraction_records (id, document_id, plugin_key, run, fields, flags, partial, confidence, superseded, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)`,
	"consume_use":     `UPDATE licenses SET remaining = remaining - 1 WHERE org_id = $1 AND plugin_key = $2 AND remaining > 0 AND (expires_at IS NULL OR expires_at > $3) RETURNING remaining`,
	"get_quote":       `SELECT payload FROM quotes WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems needing direct
// query access (e.g., rate-book bulk import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id  TEXT,
	org_id      TEXT NOT NULL,
	name        TEXT NOT NULL,
	trade_scope JSONB,
	status      TEXT NOT NULL DEFAULT 'uploaded',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_records (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id TEXT NOT NULL REFERENCES documents(id),
	plugin_key  TEXT NOT NULL,
	run         INTEGER NOT NULL DEFAULT 1,
	fields      JSONB NOT NULL,
	flags       JSONB,
	partial     BOOLEAN NOT NULL DEFAULT false,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	superseded  BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS elements (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id TEXT NOT NULL REFERENCES documents(id),
	kind        TEXT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quotes (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'draft',
	total      DOUBLE PRECISION NOT NULL DEFAULT 0,
	version    INTEGER NOT NULL DEFAULT 1,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS licenses (
	org_id     TEXT NOT NULL,
	plugin_key TEXT NOT NULL,
	remaining  INTEGER NOT NULL DEFAULT 0,
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (org_id, plugin_key)
);

CREATE TABLE IF NOT EXISTS rate_entries (
	kind          TEXT NOT NULL,
	signature     TEXT NOT NULL DEFAULT '',
	unit          TEXT NOT NULL DEFAULT '',
	material_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	labor_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (kind, signature)
);

CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(org_id);
CREATE INDEX IF NOT EXISTS idx_records_doc_plugin ON extraction_records(document_id, plugin_key, superseded);
CREATE INDEX IF NOT EXISTS idx_elements_doc ON elements(document_id);
CREATE INDEX IF NOT EXISTS idx_quotes_org_status ON quotes(org_id, status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
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
		return eris.Wrap(err, "postgres: marshal trade scope")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, project_id, org_id, name, trade_scope, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.ProjectID, doc.OrgID, doc.Name, scopeJSON, string(doc.Status), now, now,
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, org_id, name, trade_scope, status, created_at, updated_at
		 FROM documents WHERE id = $1`, id,
	)

	var doc model.Document
	var scopeJSON []byte
	err := row.Scan(&doc.ID, &doc.ProjectID, &doc.OrgID, &doc.Name, &scopeJSON, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan document")
	}
	if len(scopeJSON) > 0 {
		if err := json.Unmarshal(scopeJSON, &doc.TradeScope); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal trade scope")
		}
	}
	return &doc, nil
}

func (s *PostgresStore) SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "document %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveExtractionRecord(ctx context.Context, rec *model.ExtractionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	flagsJSON, err := json.Marshal(rec.Flags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal flags")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE extraction_records SET superseded = true
		 WHERE document_id = $1 AND plugin_key = $2 AND superseded = false`,
		rec.DocumentID, rec.PluginKey,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: supersede prior records")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO extraction_records (id, document_id, plugin_key, run, fields, flags, partial, confidence, superseded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)`,
		rec.ID, rec.DocumentID, rec.PluginKey, rec.Run, fieldsJSON, flagsJSON, rec.Partial, rec.Confidence, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert extraction record")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit extraction record")
}

func (s *PostgresStore) ListExtractionRecords(ctx context.Context, documentID string, includeSuperseded bool) ([]model.ExtractionRecord, error) {
	query := `SELECT id, document_id, plugin_key, run, fields, flags, partial, confidence, superseded, created_at
	          FROM extraction_records WHERE document_id = $1`
	if !includeSuperseded {
		query += ` AND superseded = false`
	}
	query += ` ORDER BY plugin_key, run`

	rows, err := s.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extraction records")
	}
	defer rows.Close()

	var records []model.ExtractionRecord
	for rows.Next() {
		var rec model.ExtractionRecord
		var fieldsJSON, flagsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.PluginKey, &rec.Run, &fieldsJSON, &flagsJSON,
			&rec.Partial, &rec.Confidence, &rec.Superseded, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction record")
		}
		if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fields")
		}
		if len(flagsJSON) > 0 && string(flagsJSON) != "null" {
			if err := json.Unmarshal(flagsJSON, &rec.Flags); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal flags")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list extraction records iterate")
}

func (s *PostgresStore) NextRunNumber(ctx context.Context, documentID, pluginKey string) (int, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(run), 0) + 1 FROM extraction_records WHERE document_id = $1 AND plugin_key = $2`,
		documentID, pluginKey,
	)
	var next int
	if err := row.Scan(&next); err != nil {
		return 0, eris.Wrap(err, "postgres: next run number")
	}
	return next, nil
}

// ReplaceElements swaps a document's element set inside one transaction,
// bulk-loading the new set with COPY.
func (s *PostgresStore) ReplaceElements(ctx context.Context, documentID string, elements []model.Element) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM elements WHERE document_id = $1`, documentID); err != nil {
		return eris.Wrap(err, "postgres: clear elements")
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(elements))
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
			return eris.Wrap(err, "postgres: marshal element")
		}
		rows = append(rows, []any{el.ID, documentID, el.Kind, payload, el.CreatedAt})
	}

	if _, err := db.CopyFrom(ctx, tx, "elements",
		[]string{"id", "document_id", "kind", "payload", "created_at"}, rows); err != nil {
		return eris.Wrap(err, "postgres: copy elements")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit elements")
}

func (s *PostgresStore) ListElements(ctx context.Context, documentID string) ([]model.Element, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM elements WHERE document_id = $1 ORDER BY kind, id`, documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list elements")
	}
	defer rows.Close()

	var elements []model.Element
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan element")
		}
		var el model.Element
		if err := json.Unmarshal(payload, &el); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal element")
		}
		elements = append(elements, el)
	}
	return elements, eris.Wrap(rows.Err(), "postgres: list elements iterate")
}

func (s *PostgresStore) CreateQuote(ctx context.Context, q *model.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal quote")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quotes (id, org_id, status, total, version, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.OrgID, string(q.Status), q.Total, q.Version, payload, q.CreatedAt, q.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert quote")
}

func (s *PostgresStore) UpdateQuote(ctx context.Context, q *model.Quote, expectedVersion int) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal quote")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE quotes SET org_id = $1, status = $2, total = $3, version = $4, payload = $5, updated_at = $6
		 WHERE id = $7 AND version = $8`,
		q.OrgID, string(q.Status), q.Total, q.Version, payload, q.UpdatedAt, q.ID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote %s", q.ID)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetQuote(ctx, q.ID); getErr != nil {
			return getErr
		}
		return eris.Wrapf(model.ErrConcurrentModification, "postgres: quote %s version %d", q.ID, expectedVersion)
	}
	return nil
}

func (s *PostgresStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	row := s.pool.QueryRow(ctx, `SELECT payload FROM quotes WHERE id = $1`, id)

	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: quote %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan quote")
	}

	var q model.Quote
	if err := json.Unmarshal(payload, &q); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal quote")
	}
	return &q, nil
}

func (s *PostgresStore) ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.Quote, error) {
	query := `SELECT payload FROM quotes WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OrgID != "" {
		query += ` AND org_id = ` + arg(filter.OrgID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quotes")
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quote")
		}
		var q model.Quote
		if err := json.Unmarshal(payload, &q); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal quote")
		}
		quotes = append(quotes, q)
	}
	return quotes, eris.Wrap(rows.Err(), "postgres: list quotes iterate")
}

func (s *PostgresStore) GrantLicense(ctx context.Context, lic model.License) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO licenses (org_id, plugin_key, remaining, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id, plugin_key) DO UPDATE SET remaining = EXCLUDED.remaining, expires_at = EXCLUDED.expires_at`,
		lic.OrgID, lic.PluginKey, lic.Remaining, lic.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: grant license")
}

func (s *PostgresStore) GetLicense(ctx context.Context, orgID, pluginKey string) (*model.License, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT org_id, plugin_key, remaining, expires_at FROM licenses WHERE org_id = $1 AND plugin_key = $2`,
		orgID, pluginKey,
	)
	var lic model.License
	err := row.Scan(&lic.OrgID, &lic.PluginKey, &lic.Remaining, &lic.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: license %s/%s", orgID, pluginKey)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan license")
	}
	return &lic, nil
}

// ConsumeUse performs the atomic compare-and-decrement in one conditional
// UPDATE ... RETURNING; row-level locking serializes concurrent callers.
func (s *PostgresStore) ConsumeUse(ctx context.Context, orgID, pluginKey string, now time.Time) (int, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE licenses SET remaining = remaining - 1
		 WHERE org_id = $1 AND plugin_key = $2 AND remaining > 0
		   AND (expires_at IS NULL OR expires_at > $3)
		 RETURNING remaining`,
		orgID, pluginKey, now.UTC(),
	)

	var remaining int
	err := row.Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		lic, getErr := s.GetLicense(ctx, orgID, pluginKey)
		if getErr != nil || lic.Expired(now) {
			return 0, model.ErrPluginNotLicensed
		}
		return 0, model.ErrQuotaExceeded
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: consume use")
	}
	return remaining, nil
}

func (s *PostgresStore) RefundUse(ctx context.Context, orgID, pluginKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE licenses SET remaining = remaining + 1 WHERE org_id = $1 AND plugin_key = $2`,
		orgID, pluginKey,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: refund use")
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPluginNotLicensed
	}
	return nil
}

// ImportRates bulk-upserts a rate book so re-imports replace entries in
// place. Keyed on (kind, signature).
func (s *PostgresStore) ImportRates(ctx context.Context, entries []model.RateEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{e.Kind, e.Signature, e.Unit, e.MaterialRate, e.LaborRate})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "rate_entries",
		Columns:      []string{"kind", "signature", "unit", "material_rate", "labor_rate"},
		ConflictKeys: []string{"kind", "signature"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import rates")
	}
	return n, nil
}

// LoadRates reads the full rate table, for feeding the estimation engine.
func (s *PostgresStore) LoadRates(ctx context.Context) ([]model.RateEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, signature, unit, material_rate, labor_rate FROM rate_entries ORDER BY kind, signature`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load rates")
	}
	defer rows.Close()

	var entries []model.RateEntry
	for rows.Next() {
		var e model.RateEntry
		if err := rows.Scan(&e.Kind, &e.Signature, &e.Unit, &e.MaterialRate, &e.LaborRate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rate entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: load rates iterate")
}
