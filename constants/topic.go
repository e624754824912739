package constants

import (
	"strings"
)

type Topic string

const (
	Calculus      Topic = "calculus"
	Combinatorics Topic = "combinatorics"
	Probability   Topic = "probability"
	Statistics    Topic = "statistics"
	Algebra       Topic = "algebra"
)

// DefaultTopic is used whenever the model's topic label cannot be resolved.
const DefaultTopic = Calculus

var allTopics = []Topic{
	Calculus,
	Combinatorics,
	Probability,
	Statistics,
	Algebra,
}

// topicSynonyms maps labels models commonly emit onto the fixed topic set.
var topicSynonyms = map[string]Topic{
	"integration":             Calculus,
	"integrals":               Calculus,
	"integral":                Calculus,
	"differentiation":         Calculus,
	"derivative":              Calculus,
	"derivatives":             Calculus,
	"limits":                  Calculus,
	"differential equations":  Calculus,
	"permutations":            Combinatorics,
	"combinations":            Combinatorics,
	"counting":                Combinatorics,
	"binomial theorem":        Combinatorics,
	"arrangements":            Combinatorics,
	"conditional probability": Probability,
	"binomial distribution":   Probability,
	"normal distribution":     Probability,
	"random variables":        Probability,
	"expectation":             Probability,
	"data analysis":           Statistics,
	"descriptive statistics":  Statistics,
	"regression":              Statistics,
	"correlation":             Statistics,
	"mean":                    Statistics,
	"variance":                Statistics,
	"hypothesis testing":      Statistics,
	"equations":               Algebra,
	"polynomials":             Algebra,
	"functions":               Algebra,
	"sequences":               Algebra,
	"series":                  Algebra,
	"logarithms":              Algebra,
	"inequalities":            Algebra,
}

func TopicsAsStringSlice() []string {
	result := make([]string, len(allTopics))
	for i, t := range allTopics {
		result[i] = string(t)
	}
	return result
}

// CanonicalizeTopic resolves a free-form label. The bool reports whether the
// label matched the set or a synonym; on false the DefaultTopic is returned.
func CanonicalizeTopic(input string) (Topic, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return DefaultTopic, false
	}
	normalized = strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(normalized)), " ")

	for _, t := range allTopics {
		if normalized == string(t) {
			return t, true
		}
	}
	if t, ok := topicSynonyms[normalized]; ok {
		return t, true
	}
	return DefaultTopic, false
}
