package analysis

import "strings"

// UrgentKeywords is the fixed English and Afrikaans urgency list.
var UrgentKeywords = []string{
	"urgent", "action required", "asap", "deadline", "critical",
	"dringend", "aksie vereis", "sgm", "sperdatum", "krities", "belangrik", "spoedig", "gou", "NB",
}

// HasUrgentKeyword reports whether s contains any urgent keyword,
// ignoring case.
func HasUrgentKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range UrgentKeywords {
		if strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// HasQuestion reports whether body contains a literal question mark.
func HasQuestion(body string) bool {
	return strings.Contains(body, "?")
}
