package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verethfier/internal/ownership"
)

func TestOracle_CountOwned(t *testing.T) {
	oracle := New()
	oracle.SetHoldings("0xABC",
		ownership.Asset{Slug: "punks", TokenID: "1", Attributes: map[string]string{"background": "blue"}},
		ownership.Asset{Slug: "punks", TokenID: "2", Attributes: map[string]string{"background": "red"}},
		ownership.Asset{Slug: "apes", TokenID: "3"},
	)
	ctx := context.Background()

	count, err := oracle.CountOwned(ctx, "0xabc", ownership.Criteria{Slug: "ALL"})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = oracle.CountOwned(ctx, "0xabc", ownership.Criteria{Slug: "punks", AttributeKey: "Background", AttributeValue: "BLUE"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = oracle.CountOwned(ctx, "0xdef", ownership.Criteria{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOracle_Outage(t *testing.T) {
	oracle := New()
	oracle.SetError(ownership.NewError(ownership.ErrorUnavailable, "down", nil))

	_, err := oracle.CountOwned(context.Background(), "0xabc", ownership.Criteria{})
	assert.True(t, ownership.IsQueryError(err))

	oracle.SetError(nil)
	_, err = oracle.CountOwned(context.Background(), "0xabc", ownership.Criteria{})
	assert.NoError(t, err)
	assert.Equal(t, 2, oracle.Calls())
}

func TestOracle_CancelledContextIsQueryError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().CountOwned(ctx, "0xabc", ownership.Criteria{})
	assert.True(t, ownership.IsQueryError(err))
}
