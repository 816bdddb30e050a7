//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"verethfier/internal/ownership"
	"verethfier/pkg/testutil/containers"
)

type OracleIntegrationSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	pool   *pgxpool.Pool
	oracle *Oracle
	ctx    context.Context
}

func TestOracleIntegrationSuite(t *testing.T) {
	suite.Run(t, new(OracleIntegrationSuite))
}

func (s *OracleIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	pool, err := pgxpool.New(s.ctx, s.pg.DSN)
	s.Require().NoError(err)
	s.T().Cleanup(pool.Close)
	s.pool = pool
	s.oracle = New(pool)

	_, err = s.pg.DB.ExecContext(s.ctx, `
		INSERT INTO nft_holdings (address, slug, token_id, attributes) VALUES
		('0xabc', 'punks', '1', '{"background":"blue"}'),
		('0xabc', 'punks', '2', '{"Background":"Blue"}'),
		('0xabc', 'punks', '3', '{"background":"red"}'),
		('0xabc', 'apes',  '4', '{"fur":"gold"}'),
		('0xdef', 'punks', '5', '{"background":"blue"}')`)
	s.Require().NoError(err)
}

func (s *OracleIntegrationSuite) TestMixedCaseAddressIsRejected() {
	_, err := s.pg.DB.ExecContext(s.ctx, `
		INSERT INTO nft_holdings (address, slug, token_id) VALUES ('0xAbC', 'punks', '99')`)
	s.Error(err)
}

func (s *OracleIntegrationSuite) TestCounts() {
	tests := []struct {
		name     string
		criteria ownership.Criteria
		want     int
	}{
		{"everything", ownership.Criteria{Slug: "ALL", AttributeKey: "ALL", AttributeValue: "ALL"}, 4},
		{"collection", ownership.Criteria{Slug: "punks"}, 3},
		{"attribute", ownership.Criteria{Slug: "punks", AttributeKey: "background", AttributeValue: "blue"}, 1},
		{"any key", ownership.Criteria{AttributeKey: "ALL", AttributeValue: "GOLD"}, 1},
		{"none", ownership.Criteria{Slug: "moonbirds"}, 0},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			count, err := s.oracle.CountOwned(s.ctx, "0xABC", tt.criteria)
			s.Require().NoError(err)
			s.Equal(tt.want, count)
		})
	}
}
