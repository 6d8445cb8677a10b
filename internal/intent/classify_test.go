// ABOUTME: Table-driven tests for message classification
// ABOUTME: Covers explicit prefixes, keyword+phrase routing, and chat fallback

package intent

import (
	"testing"

	"github.com/mauromedda/medassist/internal/action"
)

func TestParseMessageForAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantName action.Name
		wantKey  string
		wantVal  string
	}{
		{"prefix symptoms", "symptoms: fever and chills", action.AnalyzeSymptoms, "symptoms", "fever and chills"},
		{"prefix analyze", "Analyze:   sore throat  ", action.AnalyzeSymptoms, "symptoms", "sore throat"},
		{"prefix with leading space", "  SYMPTOMS: rash", action.AnalyzeSymptoms, "symptoms", "rash"},
		{"prefix keeps later colons", "symptoms: pain: sharp", action.AnalyzeSymptoms, "symptoms", "pain: sharp"},
		{"prefix empty remainder", "symptoms:", action.AnalyzeSymptoms, "symptoms", ""},
		{"keyword and phrase", "I have a bad headache since morning", action.AnalyzeSymptoms, "symptoms", "I have a bad headache since morning"},
		{"experiencing nausea", "I'm experiencing nausea after meals", action.AnalyzeSymptoms, "symptoms", "I'm experiencing nausea after meals"},
		{"feeling sick", "Feeling sick today", action.AnalyzeSymptoms, "symptoms", "Feeling sick today"},
		{"symptoms word is both signals", "what are the symptoms of flu?", action.AnalyzeSymptoms, "symptoms", "what are the symptoms of flu?"},
		{"keyword via substring", "i have toothache", action.AnalyzeSymptoms, "symptoms", "i have toothache"},
		{"keyword without phrase", "what causes a fever?", action.Chat, "message", "what causes a fever?"},
		{"phrase without keyword", "I have a question about diet", action.Chat, "message", "I have a question about diet"},
		{"plain chat", "What is diabetes?", action.Chat, "message", "What is diabetes?"},
		{"chat keeps original text", "  Hello there  ", action.Chat, "message", "  Hello there  "},
		{"empty", "", action.Chat, "message", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			name, args := ParseMessageForAction(tt.input)
			if name != tt.wantName {
				t.Fatalf("expected %s, got %s", tt.wantName, name)
			}
			if len(args) != 1 {
				t.Fatalf("expected exactly one argument, got %v", args)
			}
			if got := args[tt.wantKey]; got != tt.wantVal {
				t.Errorf("expected %s=%q, got %q", tt.wantKey, tt.wantVal, got)
			}
		})
	}
}

func TestExplainSignals(t *testing.T) {
	t.Parallel()

	c := Explain("symptoms: dizziness")
	if len(c.Signals) != 1 || c.Signals[0].Kind != SignalPrefix || c.Signals[0].Text != "symptoms:" {
		t.Errorf("unexpected prefix signals %+v", c.Signals)
	}

	c = Explain("I have a cough")
	if len(c.Signals) != 2 || c.Signals[0].Text != "cough" || c.Signals[1].Text != "i have" {
		t.Errorf("unexpected heuristic signals %+v", c.Signals)
	}
	if c.String() != "analyze_symptoms [keyword:cough, phrase:i have]" {
		t.Errorf("unexpected summary %q", c.String())
	}

	if c := Explain("hi"); len(c.Signals) != 0 || c.String() != "chat" {
		t.Errorf("expected plain chat, got %v", c)
	}
}
