package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"verethfier/internal/ownership"
	oraclememory "verethfier/internal/ownership/memory"
	"verethfier/internal/platform/metrics"
	"verethfier/internal/rules"
	rulestore "verethfier/internal/rules/store"
	"verethfier/internal/verification"
)

const address = "0x00000000000000000000000000000000000000aa"

// EngineSuite drives the engine with the in-memory rule store and oracle.
// It covers classification, the count policy, failure isolation and the
// guarantee that no error crosses the engine boundary.
type EngineSuite struct {
	suite.Suite
	ctx     context.Context
	rules   *rulestore.InMemoryRuleStore
	oracle  *oraclememory.Oracle
	metrics *metrics.Metrics
	engine  *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.rules = rulestore.NewInMemory()
	s.oracle = oraclememory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	e, err := New(s.rules, s.oracle, WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.engine = e
}

func (s *EngineSuite) addRule(r rules.Rule) rules.Rule {
	if r.GuildID == "" {
		r.GuildID = "guild-1"
	}
	if r.Kind == "" {
		r.Kind = rules.Classify(r)
	}
	s.Require().NoError(s.rules.Create(s.ctx, r))
	return r
}

func punk(id, background string) ownership.Asset {
	return ownership.Asset{Slug: "punks", TokenID: id, Attributes: map[string]string{"background": background}}
}

// =============================================================================
// Scenarios
// =============================================================================

func (s *EngineSuite) TestScenarioA_WildcardRuleNoAssets() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: "ALL", AttributeKey: "ALL", AttributeValue: "ALL", MinItems: 1})

	v := s.engine.VerifyUser(s.ctx, "user-1", "r1", address)

	s.False(v.IsValid)
	s.Equal(0, v.MatchingAssetCount)
	s.Equal(verification.RuleTypeModern, v.RuleType)
	s.Empty(v.Error)
}

func (s *EngineSuite) TestScenarioB_AttributeCount() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: "punks", AttributeKey: "background", AttributeValue: "blue", MinItems: 2})
	s.oracle.SetHoldings(address, punk("1", "blue"), punk("2", "blue"), punk("3", "red"))

	v := s.engine.VerifyUser(s.ctx, "user-1", "r1", address)

	s.True(v.IsValid)
	s.Equal(2, v.MatchingAssetCount)
	s.Equal(verification.Details{
		Collection: "punks", AttributeKey: "background", AttributeValue: "blue", MinItems: 2, FoundAssets: 2,
	}, v.Details)
}

// =============================================================================
// Classification
// =============================================================================

func (s *EngineSuite) TestLegacyRuleQueriesAnyAsset() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: rules.LegacySlug, MinItems: 5})
	s.oracle.SetHoldings(address, ownership.Asset{Slug: "anything"})

	v := s.engine.VerifyUser(s.ctx, "user-1", "r1", address)

	s.True(v.IsValid)
	s.Equal(verification.RuleTypeLegacy, v.RuleType)
	s.Equal("ALL", v.Details.Collection)
	s.Equal(1, v.Details.MinItems)
}

func (s *EngineSuite) TestStoredKindWinsOverSentinelLookalike() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: rules.LegacySlug, MinItems: 1, Kind: rules.KindModern})
	s.oracle.SetHoldings(address, ownership.Asset{Slug: "anything"})

	v := s.engine.VerifyUser(s.ctx, "user-1", "r1", address)

	s.False(v.IsValid)
	s.Equal(verification.RuleTypeModern, v.RuleType)
}

func (s *EngineSuite) TestUnknownRule() {
	v := s.engine.VerifyRule(s.ctx, "user-1", rules.Rule{ID: "r1"}, address)

	s.False(v.IsValid)
	s.Equal(verification.RuleTypeUnknown, v.RuleType)
	s.Equal("unknown rule type", v.Error)
	s.Equal(verification.ReasonUnknownRuleType, v.Reason)
	s.Zero(s.oracle.Calls())
}

func (s *EngineSuite) TestMissingRule() {
	v := s.engine.VerifyUser(s.ctx, "user-1", "gone", address)

	s.False(v.IsValid)
	s.Equal(verification.RuleTypeUnknown, v.RuleType)
	s.Equal("not found", v.Error)
	s.Equal(verification.ReasonRuleNotFound, v.Reason)
}

// =============================================================================
// Count policy
// =============================================================================

func (s *EngineSuite) TestMinItemsBoundary() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: "punks", MinItems: 2})

	s.oracle.SetHoldings(address, punk("1", "x"))
	s.False(s.engine.VerifyUser(s.ctx, "user-1", "r1", address).IsValid)

	s.oracle.SetHoldings(address, punk("1", "x"), punk("2", "x"))
	s.True(s.engine.VerifyUser(s.ctx, "user-1", "r1", address).IsValid)
}

func (s *EngineSuite) TestZeroMinItemsNeverValid() {
	s.oracle.SetHoldings(address, punk("1", "x"))
	v := s.engine.VerifyRule(s.ctx, "user-1", rules.Rule{ID: "r1", Slug: "punks", Kind: rules.KindModern}, address)

	s.False(v.IsValid)
	s.Equal(1, v.MatchingAssetCount)
}

func (s *EngineSuite) TestAddressIsCaseInsensitive() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: "punks", MinItems: 1})
	s.oracle.SetHoldings(address, punk("1", "x"))

	s.True(s.engine.VerifyUser(s.ctx, "user-1", "r1", "0x00000000000000000000000000000000000000AA").IsValid)
}

// =============================================================================
// Failure containment
// =============================================================================

func (s *EngineSuite) TestOracleFailureBecomesDeferredVerdict() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: "punks", MinItems: 1})
	s.oracle.SetError(ownership.NewError(ownership.ErrorUnavailable, "index down", nil))

	v := s.engine.VerifyUser(s.ctx, "user-1", "r1", address)

	s.False(v.IsValid)
	s.True(v.Deferred())
	s.Equal(verification.RuleTypeModern, v.RuleType)
	s.Contains(v.Error, "index down")
}

func (s *EngineSuite) TestRuleStoreFailure() {
	e, err := New(failingRules{}, s.oracle)
	s.Require().NoError(err)

	v := e.VerifyUser(s.ctx, "user-1", "r1", address)
	s.Equal(verification.RuleTypeError, v.RuleType)
	s.Equal(verification.ReasonRuleStore, v.Reason)

	bulk := e.VerifyUserForServer(s.ctx, "user-1", "guild-1", address)
	s.Empty(bulk.ValidRules)
	s.Require().Len(bulk.Results, 1)
	s.Equal(verification.RuleTypeError, bulk.Results[0].RuleType)
}

func (s *EngineSuite) TestIdempotent() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: "punks", AttributeKey: "background", AttributeValue: "blue", MinItems: 1})
	s.oracle.SetHoldings(address, punk("1", "blue"))

	first := s.engine.VerifyUser(s.ctx, "user-1", "r1", address)
	second := s.engine.VerifyUser(s.ctx, "user-1", "r1", address)

	s.Equal(first, second)
}

// =============================================================================
// Bulk
// =============================================================================

func (s *EngineSuite) TestBulkIsolatesFailuresAndKeepsOrder() {
	s.addRule(rules.Rule{ID: "a", RoleID: "role-a", Slug: "punks", MinItems: 1})
	s.addRule(rules.Rule{ID: "b", RoleID: "role-b", Slug: "apes", MinItems: 1})
	s.addRule(rules.Rule{ID: "c", RoleID: "role-c", Slug: "punks", MinItems: 2})
	s.oracle.SetHoldings(address, punk("1", "x"), punk("2", "x"))

	result := s.engine.VerifyUserBulk(s.ctx, "user-1", []string{"c", "missing", "b", "a"}, address)

	s.Equal([]string{"c", "a"}, result.ValidRules)
	s.Equal([]string{"missing", "b"}, result.InvalidRules)
	s.Equal(2, result.MatchingAssetCounts["c"])
	s.Require().Len(result.Results, 4)
	s.Equal("missing", result.Results[1].RuleID)
	s.Equal(verification.ReasonRuleNotFound, result.Results[1].Reason)
}

func (s *EngineSuite) TestVerifyUserForServer() {
	s.addRule(rules.Rule{ID: "a", RoleID: "role-a", Slug: "punks", MinItems: 1})
	s.addRule(rules.Rule{ID: "b", GuildID: "guild-2", RoleID: "role-b", Slug: "punks", MinItems: 1})
	s.oracle.SetHoldings(address, punk("1", "x"))

	result := s.engine.VerifyUserForServer(s.ctx, "user-1", "guild-1", address)

	s.Equal([]string{"a"}, result.ValidRules)
	s.Len(result.Results, 1)
}

func (s *EngineSuite) TestVerifyLegacyHolder() {
	s.False(s.engine.VerifyLegacyHolder(s.ctx, "user-1", address).IsValid)

	s.oracle.SetHoldings(address, ownership.Asset{Slug: "whatever"})
	v := s.engine.VerifyLegacyHolder(s.ctx, "user-1", address)
	s.True(v.IsValid)
	s.Equal(verification.RuleTypeLegacy, v.RuleType)
}

func (s *EngineSuite) TestVerdictMetrics() {
	s.addRule(rules.Rule{ID: "r1", RoleID: "role", Slug: "punks", MinItems: 1})
	s.engine.VerifyUser(s.ctx, "user-1", "r1", address)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Verdicts.WithLabelValues("modern", "false")))
}

func (s *EngineSuite) TestNewValidatesDependencies() {
	_, err := New(nil, s.oracle)
	s.Error(err)
	_, err = New(s.rules, nil)
	s.Error(err)
}

type failingRules struct{}

func (failingRules) FindByID(context.Context, string) (*rules.Rule, error) {
	return nil, errors.New("connection reset")
}

func (failingRules) ListByGuild(context.Context, string) ([]rules.Rule, error) {
	return nil, errors.New("connection reset")
}
