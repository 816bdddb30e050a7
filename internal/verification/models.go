package verification

// RuleType is the classification reported on a verdict.
type RuleType string

const (
	RuleTypeLegacy  RuleType = "legacy"
	RuleTypeModern  RuleType = "modern"
	RuleTypeUnknown RuleType = "unknown"
	RuleTypeError   RuleType = "error"
)

// Reason says why a verdict is invalid for reasons other than a low count.
// Callers branch on it; Error is the human-readable form.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonRuleNotFound    Reason = "rule_not_found"
	ReasonUnknownRuleType Reason = "unknown_rule_type"
	ReasonRuleStore       Reason = "rule_store"
	ReasonOwnershipQuery  Reason = "ownership_query"
)

// Details is the breakdown shown to users who did not qualify.
type Details struct {
	Collection     string `json:"collection"`
	AttributeKey   string `json:"attributeKey"`
	AttributeValue string `json:"attributeValue"`
	MinItems       int    `json:"minItems"`
	FoundAssets    int    `json:"foundAssets"`
}

// Verdict is the engine's answer for one rule.
type Verdict struct {
	RuleID             string   `json:"ruleId"`
	IsValid            bool     `json:"isValid"`
	MatchingAssetCount int      `json:"matchingAssetCount"`
	RuleType           RuleType `json:"ruleType"`
	Error              string   `json:"error,omitempty"`
	Reason             Reason   `json:"-"`
	Details            Details  `json:"verificationDetails"`
}

// Deferred reports whether the verdict carries no ownership information
// because the index could not be queried.
func (v Verdict) Deferred() bool {
	return v.Reason == ReasonOwnershipQuery
}

// BulkResult aggregates verdicts in rule order.
type BulkResult struct {
	ValidRules          []string       `json:"validRules"`
	InvalidRules        []string       `json:"invalidRules"`
	MatchingAssetCounts map[string]int `json:"matchingAssetCounts"`
	Results             []Verdict      `json:"results"`
}

// NewBulkResult folds verdicts into a BulkResult preserving order.
func NewBulkResult(verdicts []Verdict) BulkResult {
	out := BulkResult{
		ValidRules:          make([]string, 0, len(verdicts)),
		InvalidRules:        make([]string, 0),
		MatchingAssetCounts: make(map[string]int, len(verdicts)),
		Results:             verdicts,
	}
	for _, v := range verdicts {
		out.MatchingAssetCounts[v.RuleID] = v.MatchingAssetCount
		if v.IsValid {
			out.ValidRules = append(out.ValidRules, v.RuleID)
		} else {
			out.InvalidRules = append(out.InvalidRules, v.RuleID)
		}
	}
	return out
}
