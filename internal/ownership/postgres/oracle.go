// Package postgres answers ownership queries from the nft_holdings asset index.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"verethfier/internal/ownership"
	"verethfier/internal/verification/matcher"
)

// Querier is the subset of *pgxpool.Pool the oracle uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Oracle loads an address's holdings (narrowed by slug in SQL) and counts
// matches with the same attribute semantics the matcher applies.
type Oracle struct {
	db      Querier
	timeout time.Duration
}

type Option func(*Oracle)

// WithQueryTimeout bounds each index query.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *Oracle) {
		o.timeout = d
	}
}

func New(db Querier, opts ...Option) *Oracle {
	o := &Oracle{db: db, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Addresses are stored lower-cased; the argument is normalised to match so
// the plain address index applies.
const holdingsQuery = `
	SELECT slug, token_id, attributes
	FROM nft_holdings
	WHERE address = $1
	  AND ($2 = '' OR slug = $2)
	ORDER BY slug, token_id
`

func (o *Oracle) CountOwned(ctx context.Context, address string, criteria ownership.Criteria) (int, error) {
	assets, err := o.Holdings(ctx, address, criteria.Slug)
	if err != nil {
		return 0, err
	}
	return len(matcher.MatchingAssets(criteria, assets)), nil
}

// Holdings returns the assets held by address; a wildcard slug returns all.
func (o *Oracle) Holdings(ctx context.Context, address, slug string) ([]ownership.Asset, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if ownership.IsWildcard(slug) {
		slug = ""
	}

	rows, err := o.db.Query(ctx, holdingsQuery, ownership.NormalizeAddress(address), slug)
	if err != nil {
		return nil, classify(ctx, "query holdings", err)
	}
	defer rows.Close()

	assets := make([]ownership.Asset, 0)
	for rows.Next() {
		var asset ownership.Asset
		var raw []byte
		if err := rows.Scan(&asset.Slug, &asset.TokenID, &raw); err != nil {
			return nil, ownership.NewError(ownership.ErrorBadData, "scan holding", err)
		}
		attrs, err := decodeAttributes(raw)
		if err != nil {
			return nil, ownership.NewError(ownership.ErrorBadData, fmt.Sprintf("attributes of %s/%s", asset.Slug, asset.TokenID), err)
		}
		asset.Attributes = attrs
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, "iterate holdings", err)
	}
	return assets, nil
}

// decodeAttributes flattens a JSON object of traits into strings. Non-string
// trait values (numbers, booleans) are compared by their JSON text.
func decodeAttributes(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	attrs := make(map[string]string, len(decoded))
	for k, v := range decoded {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			attrs[k] = s
			continue
		}
		attrs[k] = string(v)
	}
	return attrs, nil
}

func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ownership.NewError(ownership.ErrorTimeout, op, err)
	}
	return ownership.NewError(ownership.ErrorUnavailable, op, err)
}
