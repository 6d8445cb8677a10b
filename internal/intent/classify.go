// ABOUTME: Keyword classifier deciding between symptom analysis and general chat
// ABOUTME: Pure function of the message text; explicit prefixes win over heuristics

package intent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mauromedda/medassist/internal/action"
)

// Explicit routing prefixes, matched against the folded message.
var analyzePrefixes = []string{"symptoms:", "analyze:"}

// medicalKeywords and symptomPhrases must both match for implicit routing.
// Matching is by substring, so "ache" also matches "headache".
var medicalKeywords = []string{
	"pain", "fever", "headache", "nausea", "cough",
	"symptoms", "hurt", "ache", "sick", "illness",
}

var symptomPhrases = []string{"i have", "experiencing", "feeling", "symptoms"}

// ParseMessageForAction routes a free-text message to an action.
func ParseMessageForAction(message string) (action.Name, action.Args) {
	c := Explain(message)
	return c.Action, c.Args
}

// Explain classifies message and reports the signals that matched.
func Explain(message string) Classification {
	// A Caser is stateful and must not be shared across goroutines.
	txt := strings.TrimSpace(cases.Lower(language.Und).String(message))

	for _, prefix := range analyzePrefixes {
		if strings.HasPrefix(txt, prefix) {
			_, rest, _ := strings.Cut(message, ":")
			return Classification{
				Action:  action.AnalyzeSymptoms,
				Args:    action.Args{"symptoms": strings.TrimSpace(rest)},
				Signals: []Signal{{Kind: SignalPrefix, Text: prefix}},
			}
		}
	}

	keyword, hasKeyword := firstContained(txt, medicalKeywords)
	phrase, hasPhrase := firstContained(txt, symptomPhrases)
	if hasKeyword && hasPhrase {
		return Classification{
			Action: action.AnalyzeSymptoms,
			Args:   action.Args{"symptoms": message},
			Signals: []Signal{
				{Kind: SignalKeyword, Text: keyword},
				{Kind: SignalPhrase, Text: phrase},
			},
		}
	}

	return Classification{
		Action: action.Chat,
		Args:   action.Args{"message": message},
	}
}

func firstContained(txt string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if strings.Contains(txt, c) {
			return c, true
		}
	}
	return "", false
}
