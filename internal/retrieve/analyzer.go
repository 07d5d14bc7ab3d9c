// Package retrieve implements two-stage retrieval: semantic search
// over a vector index followed by reference-graph expansion, scoring,
// and diversity filtering.
package retrieve

import (
	"regexp"
	"sort"
	"strings"
)

// Intent classifies what kind of answer a query is after.
type Intent string

const (
	IntentDefinition      Intent = "definition"
	IntentUsage           Intent = "usage"
	IntentTroubleshooting Intent = "troubleshooting"
	IntentComparison      Intent = "comparison"
	IntentGeneral         Intent = "general"
)

var (
	// parseConfig(...): anything shaped like a call.
	functionMentionPattern = regexp.MustCompile(`(?s)\b(\w+)\s*\(.*?\)`)
	// "the Parser class", "struct Token"
	typeMentionPattern = regexp.MustCompile(`(?i)\b(?:class|struct|interface|enum)\s+(\w+)`)
	// PascalCase or camelCase identifiers.
	identifierPattern = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9_]*|[a-z][a-zA-Z0-9_]*[A-Z][a-zA-Z0-9_]*)\b`)
)

// identifierStopwords are common words the identifier pattern would
// otherwise pick up at the start of a sentence.
var identifierStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "can": true, "how": true,
}

// intentKeywords is checked in order; the first intent with a keyword
// present in the query wins.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentDefinition, []string{"what is", "define", "definition of", "explain"}},
	{IntentUsage, []string{"how to use", "example", "usage", "use", "implement"}},
	{IntentTroubleshooting, []string{"error", "problem", "issue", "debug", "fix", "troubleshoot"}},
	{IntentComparison, []string{"vs", "versus", "compare", "difference", "between"}},
}

// QueryAnalysis is the structured form of a free-text query.
type QueryAnalysis struct {
	OriginalQuery string
	CodeElements  []string
	Intent        Intent
	Terms         []string
}

// Analyzer extracts code element mentions and intent from queries.
type Analyzer struct{}

// NewAnalyzer creates a query analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze extracts the code elements a query mentions and classifies
// its intent. Elements are returned sorted and deduplicated.
func (a *Analyzer) Analyze(query string) QueryAnalysis {
	lower := strings.ToLower(query)

	elements := make(map[string]bool)
	for _, m := range functionMentionPattern.FindAllStringSubmatch(query, -1) {
		elements[m[1]] = true
	}
	for _, m := range typeMentionPattern.FindAllStringSubmatch(query, -1) {
		elements[m[1]] = true
	}
	for _, m := range identifierPattern.FindAllStringSubmatch(query, -1) {
		id := m[1]
		if len(id) > 2 && !identifierStopwords[strings.ToLower(id)] {
			elements[id] = true
		}
	}

	sorted := make([]string, 0, len(elements))
	for elem := range elements {
		sorted = append(sorted, elem)
	}
	sort.Strings(sorted)

	intent := IntentGeneral
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				intent = entry.intent
				break
			}
		}
		if intent != IntentGeneral {
			break
		}
	}

	return QueryAnalysis{
		OriginalQuery: query,
		CodeElements:  sorted,
		Intent:        intent,
		Terms:         strings.Fields(lower),
	}
}
