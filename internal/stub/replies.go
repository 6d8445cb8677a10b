// ABOUTME: Canned reply text and in-memory conversation state for the stub server
// ABOUTME: Replies are deterministic so tests and demos can assert on them

package stub

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/mauromedda/medassist/internal/log"
)

const (
	greetingTemplate = "greeting://patient/{name}"
	greetingPrefix   = "greeting://patient/"
	serverInfoURI    = "info://server"
)

// historyWindow is how many messages the summary looks back over.
const historyWindow = 10

type message struct {
	role    string
	content string
}

type conversation struct {
	mu       sync.Mutex
	messages []message
}

func (c *conversation) add(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{role: role, content: content})
}

func (c *conversation) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *conversation) summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return "No conversation history available."
	}

	recent := c.messages
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	var topics []string
	for _, m := range recent {
		if m.role == "user" {
			topics = append(topics, log.Preview(m.content, 60))
		}
	}
	return fmt.Sprintf("%d messages exchanged. Main topics discussed: %s.", len(c.messages), strings.Join(topics, "; "))
}

func chatReply(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "I'm here to help. What would you like to know?"
	}
	return fmt.Sprintf("I'm running in offline mode, so this is a canned reply to: %q. "+
		"For personal medical advice, please talk with a healthcare professional.", query)
}

func analysis(in AnalyzeInput) string {
	var b strings.Builder
	if in.PatientAge != nil {
		fmt.Fprintf(&b, "Patient age: %d years old. ", *in.PatientAge)
	}
	if in.PatientGender != "" {
		fmt.Fprintf(&b, "Patient gender: %s. ", in.PatientGender)
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Reported symptoms: %s\n\n", strings.TrimSpace(in.Symptoms))
	b.WriteString("1. Possible causes: several common conditions can produce these symptoms.\n")
	b.WriteString("2. Recommended next steps: rest, stay hydrated, and monitor how the symptoms change.\n")
	b.WriteString("3. Seek immediate care if symptoms worsen suddenly, or if you have trouble breathing or chest pain.\n")
	b.WriteString("4. General advice: keep a short diary of symptoms to share with your doctor.")
	return b.String()
}

func greetingName(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, greetingPrefix)
	if !ok || raw == "" {
		return "", errors.New("not a greeting uri")
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decoding name: %w", err)
	}
	return name, nil
}

func greeting(name string) string {
	return fmt.Sprintf("Hello %s, I'm your AI medical assistant. How can I help you today? "+
		"Please remember that I provide general information and cannot replace professional medical advice.", name)
}

func consultationPrompt(symptoms, duration, severity string) string {
	var b strings.Builder
	b.WriteString("You are a qualified medical assistant AI. Please conduct a preliminary assessment based on the following information:\n\n")
	fmt.Fprintf(&b, "Patient Symptoms: %s\n", symptoms)
	if duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", duration)
	}
	if severity != "" {
		fmt.Fprintf(&b, "Severity: %s\n", severity)
	}
	b.WriteString("\nPlease provide:\n")
	b.WriteString("1. Possible differential diagnoses\n")
	b.WriteString("2. Recommended diagnostic tests or examinations\n")
	b.WriteString("3. Immediate care recommendations\n")
	b.WriteString("4. Red flag symptoms that require immediate medical attention\n")
	b.WriteString("5. Follow-up recommendations\n\n")
	b.WriteString("This assessment is for informational purposes only. Always consult with a qualified healthcare provider.")
	return b.String()
}

func educationPrompt(topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a health educator. Please provide accurate and easy-to-understand information about: %s\n\n", topic)
	b.WriteString("Please include:\n")
	fmt.Fprintf(&b, "1. What is %s?\n", topic)
	b.WriteString("2. Common causes and risk factors\n")
	b.WriteString("3. Signs and symptoms to watch for\n")
	b.WriteString("4. Prevention strategies\n")
	b.WriteString("5. Treatment options (general overview)\n")
	b.WriteString("6. When to seek medical care\n")
	b.WriteString("7. Lifestyle recommendations")
	return b.String()
}
