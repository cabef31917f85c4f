// Package recognize finds a customer identifier in page text by trying an
// ordered list of rules and stopping at the first one that matches.
package recognize

// Match is a recognized identifier and the rule that produced it.
type Match struct {
	Identifier string `json:"identifier"`
	Rule       string `json:"rule"`
}

// Recognizer applies rules in priority order.
type Recognizer struct {
	rules []Rule
}

// New creates a recognizer over rules; earlier rules win.
func New(rules ...Rule) *Recognizer {
	return &Recognizer{rules: rules}
}

// Recognize returns the first rule match, or false when no rule matches.
func (r *Recognizer) Recognize(text string) (Match, bool) {
	if text == "" {
		return Match{}, false
	}
	for _, rule := range r.rules {
		if id, ok := rule.Match(text); ok {
			return Match{Identifier: id, Rule: rule.Name()}, true
		}
	}
	return Match{}, false
}

// Rules returns the rule names in priority order.
func (r *Recognizer) Rules() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name()
	}
	return names
}
