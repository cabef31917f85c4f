package recognize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rule names reported alongside a match.
const (
	RuleCustomerRefLabel = "customer_ref_label"
	RuleCustomerRefLoose = "customer_ref_loose"
	RuleAramCode         = "aram_code"
	RuleKSGCode          = "ksg_code"
	RuleTableSubstring   = "table_substring"
)

// minTableKeyLen is the shortest table key the substring fallback considers.
const minTableKeyLen = 3

// Rule is one identifier heuristic.
type Rule interface {
	Name() string
	Match(text string) (string, bool)
}

// patternRule captures group from the first regexp match.
type patternRule struct {
	name  string
	re    *regexp.Regexp
	group int
}

func (r patternRule) Name() string { return r.name }

func (r patternRule) Match(text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil || r.group >= len(m) || m[r.group] == "" {
		return "", false
	}
	return m[r.group], true
}

// The label part is case-insensitive; captured tokens are not. Tokens are
// not word-bounded: the longest uppercase run up to the limit is taken.
var (
	// "Customer Ref: ABC123", "customer ref. # AB12", "CUSTOMERREF-XYZ1"
	CustomerRefLabel Rule = patternRule{
		name:  RuleCustomerRefLabel,
		re:    regexp.MustCompile(`(?i:customer\s*ref)\.?\s*[:#\-]?\s*([A-Z0-9]{3,10})`),
		group: 1,
	}
	// "Cust Ref: A12", "Cust. Ref # B7X"
	CustomerRefLoose Rule = patternRule{
		name:  RuleCustomerRefLoose,
		re:    regexp.MustCompile(`(?i:cust(?:omer)?\.?\s*ref)\.?\s*[:#\-]?\s*([A-Z][A-Z0-9]{2,9})`),
		group: 1,
	}
	AramCode Rule = patternRule{
		name: RuleAramCode,
		re:   regexp.MustCompile(`ARAM\d{3}`),
	}
	KSGCode Rule = patternRule{
		name: RuleKSGCode,
		re:   regexp.MustCompile(`KSG[A-Z]?\d{2,4}`),
	}
)

// KeySource supplies reference table keys in table order.
type KeySource interface {
	Keys() []string
}

// substringRule returns the first key, in table order, that occurs literally
// in the text. When several keys occur the winner depends only on table order.
type substringRule struct {
	keys []string
}

// TableSubstring builds the last-resort rule from a snapshot of src's keys.
func TableSubstring(src KeySource) Rule {
	var keys []string
	if src != nil {
		for _, k := range src.Keys() {
			if utf8.RuneCountInString(k) >= minTableKeyLen {
				keys = append(keys, k)
			}
		}
	}
	return substringRule{keys: keys}
}

func (r substringRule) Name() string { return RuleTableSubstring }

func (r substringRule) Match(text string) (string, bool) {
	for _, k := range r.keys {
		if strings.Contains(text, k) {
			return k, true
		}
	}
	return "", false
}

// DefaultRules returns the five heuristics in priority order.
func DefaultRules(table KeySource) []Rule {
	return []Rule{
		CustomerRefLabel,
		CustomerRefLoose,
		AramCode,
		KSGCode,
		TableSubstring(table),
	}
}
