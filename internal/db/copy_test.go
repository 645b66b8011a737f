package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "rate_entries", []string{"kind", "signature"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"rate_entries"}, []string{"kind", "material_rate"}).WillReturnResult(3)

	rows := [][]any{{"panel", 1200.0}, {"chiller", 18000.0}, {"fixture", 310.0}}
	n, err := CopyFrom(context.Background(), mock, "rate_entries", []string{"kind", "material_rate"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"rate_entries"}, []string{"kind"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"panel"}}
	_, err = CopyFrom(context.Background(), mock, "rate_entries", []string{"kind"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO rate_entries")
	assert.NoError(t, mock.ExpectationsWereMet())
}
