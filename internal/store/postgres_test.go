package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specwright/takeoff-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetQuote_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM quotes WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetQuote(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeUse_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE licenses SET remaining = remaining - 1`).
		WithArgs("org-1", "mep.electrical_systems", now).
		WillReturnRows(pgxmock.NewRows([]string{"remaining"}).AddRow(4))

	remaining, err := s.ConsumeUse(context.Background(), "org-1", "mep.electrical_systems", now)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeUse_QuotaExceeded(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE licenses SET remaining = remaining - 1`).
		WithArgs("org-1", "mep.electrical_systems", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT org_id, plugin_key, remaining, expires_at FROM licenses`).
		WithArgs("org-1", "mep.electrical_systems").
		WillReturnRows(pgxmock.NewRows([]string{"org_id", "plugin_key", "remaining", "expires_at"}).
			AddRow("org-1", "mep.electrical_systems", 0, nil))

	_, err := s.ConsumeUse(context.Background(), "org-1", "mep.electrical_systems", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrQuotaExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeUse_NotLicensed(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE licenses SET remaining = remaining - 1`).
		WithArgs("org-1", "structural.framing_analysis", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT org_id, plugin_key, remaining, expires_at FROM licenses`).
		WithArgs("org-1", "structural.framing_analysis").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.ConsumeUse(context.Background(), "org-1", "structural.framing_analysis", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPluginNotLicensed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateQuote_StaleVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	q := &model.Quote{
		ID: "q-1", OrgID: "org-1", Status: model.QuoteSent, Total: 6655, Version: 3,
		UpdatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`UPDATE quotes SET`).
		WithArgs(q.OrgID, string(q.Status), q.Total, q.Version, pgxmock.AnyArg(), q.UpdatedAt, q.ID, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT payload FROM quotes WHERE id = \$1`).
		WithArgs("q-1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow([]byte(`{"id":"q-1","version":3}`)))

	err := s.UpdateQuote(context.Background(), q, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConcurrentModification))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveExtractionRecord_SupersedesPrior(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := &model.ExtractionRecord{
		DocumentID: "doc-1",
		PluginKey:  "mep.hvac_systems",
		Run:        2,
		Fields:     model.Fields{"control_systems": model.Fields{"protocol": "BACnet"}},
		Confidence: 0.8,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE extraction_records SET superseded = true`).
		WithArgs("doc-1", "mep.hvac_systems").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO extraction_records`).
		WithArgs(pgxmock.AnyArg(), "doc-1", "mep.hvac_systems", 2, pgxmock.AnyArg(), pgxmock.AnyArg(), false, 0.8, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveExtractionRecord(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportRates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_rate_entries"},
		[]string{"kind", "signature", "unit", "material_rate", "labor_rate"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "rate_entries"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.ImportRates(context.Background(), []model.RateEntry{
		{Kind: "panel", Signature: "default", Unit: "ea", MaterialRate: 1200, LaborRate: 300},
		{Kind: "chiller", Signature: "capacity_tons=20", Unit: "ea", MaterialRate: 18000, LaborRate: 4200},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
