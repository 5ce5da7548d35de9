// Package classifier maps conversations to complexity tiers
package classifier

import (
	"regexp"
	"strings"

	"github.com/fuaadabdullah/inference-gateway/pkg/types"
)

// Default pattern vocabulary. The tier a category belongs to matters more
// than the exact words; deployments tune these through configuration.
var (
	defaultComplexPatterns = []string{
		`write (a|an|the|some)? ?(function|program|script|class|code)`,
		`\b(implement|refactor|debug|optimi[sz]e)\b`,
		`\b(algorithm|recursion|recursive|regex|sql query)\b`,
		`\b(prove|derive|theorem)\b`,
		`\b(architecture|design a system|scalab)`,
		`step[- ]by[- ]step`,
		"```",
	}
	defaultMediumPatterns = []string{
		`\b(explain|describe|summari[sz]e|compare|analyze|analyse)\b`,
		`\b(translate|rewrite|draft|outline)\b`,
		`\bwhy (is|are|does|do)\b`,
		`\bhow (does|do|can|to)\b`,
		`\bdifference between\b`,
	}
	defaultSimplePatterns = []string{
		`^(hi|hello|hey|yo|sup)\b`,
		`\b(thanks|thank you|thx)\b`,
		`\b(good (morning|afternoon|evening|night)|goodbye|bye)\b`,
		`\bhow are you\b`,
		`^(yes|no|ok|okay)\b`,
	}
)

// tierGroup is one pattern category bound to the tier it selects.
type tierGroup struct {
	tier     types.ComplexityTier
	patterns []*regexp.Regexp
}

// Classifier assigns a complexity tier to a conversation. It is pure:
// no I/O, no state mutation, identical input always yields the same tier.
type Classifier struct {
	// Evaluated in order; the first matching group wins. COMPLEX sits
	// first so a message matching several categories lands on the highest
	// tier rather than the cheapest.
	groups []tierGroup
}

// New creates a classifier from the configured vocabulary. Empty pattern
// lists fall back to the package defaults; invalid regexes are skipped.
func New(config *types.ClassifierConfig) *Classifier {
	complex := defaultComplexPatterns
	medium := defaultMediumPatterns
	simple := defaultSimplePatterns

	if config != nil {
		if len(config.ComplexPatterns) > 0 {
			complex = config.ComplexPatterns
		}
		if len(config.MediumPatterns) > 0 {
			medium = config.MediumPatterns
		}
		if len(config.SimplePatterns) > 0 {
			simple = config.SimplePatterns
		}
	}

	return &Classifier{
		groups: []tierGroup{
			{tier: types.TierComplex, patterns: compile(complex)},
			{tier: types.TierMedium, patterns: compile(medium)},
			{tier: types.TierSimple, patterns: compile(simple)},
		},
	}
}

// Classify inspects the most recent user turn and returns its tier.
// No user turn or no matching pattern defaults to MEDIUM.
func (c *Classifier) Classify(messages []types.Message) types.ComplexityTier {
	content, ok := lastUserContent(messages)
	if !ok {
		return types.TierMedium
	}

	text := strings.ToLower(content)
	for _, group := range c.groups {
		for _, p := range group.patterns {
			if p.MatchString(text) {
				return group.tier
			}
		}
	}

	return types.TierMedium
}

func lastUserContent(messages []types.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}

func compile(exprs []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		p, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		compiled = append(compiled, p)
	}
	return compiled
}
