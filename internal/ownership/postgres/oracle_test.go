package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verethfier/internal/ownership"
)

type failingQuerier struct {
	err error
}

func (f failingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, f.err
}

// recordingQuerier captures the statement and arguments of the last query.
type recordingQuerier struct {
	sql  string
	args []any
}

func (r *recordingQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.sql, r.args = sql, args
	return nil, errors.New("stop")
}

func TestOracle_QueriesNormalisedAddressDirectly(t *testing.T) {
	q := &recordingQuerier{}
	_, _ = New(q).CountOwned(context.Background(), "0xAbCdEf", ownership.Criteria{Slug: "ALL"})

	assert.Contains(t, q.sql, "WHERE address = $1")
	assert.NotContains(t, q.sql, "lower(")
	require.Len(t, q.args, 2)
	assert.Equal(t, "0xabcdef", q.args[0])
	assert.Equal(t, "", q.args[1])
}

func TestDecodeAttributes(t *testing.T) {
	attrs, err := decodeAttributes([]byte(`{"background":"blue","level":3,"legendary":true}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"background": "blue", "level": "3", "legendary": "true"}, attrs)

	attrs, err = decodeAttributes(nil)
	require.NoError(t, err)
	assert.Empty(t, attrs)

	_, err = decodeAttributes([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestOracle_QueryFailureIsUnavailable(t *testing.T) {
	oracle := New(failingQuerier{err: errors.New("connection refused")})

	_, err := oracle.CountOwned(context.Background(), "0xabc", ownership.Criteria{Slug: "punks"})

	var qe *ownership.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ownership.ErrorUnavailable, qe.Category)
}

func TestOracle_DeadlineIsTimeout(t *testing.T) {
	oracle := New(failingQuerier{err: context.DeadlineExceeded})

	_, err := oracle.CountOwned(context.Background(), "0xabc", ownership.Criteria{})

	var qe *ownership.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ownership.ErrorTimeout, qe.Category)
}
