// ABOUTME: E2E tests for the terminal chat and one-shot ask against the stub server
// ABOUTME: Exercises commands, classification, interactive symptoms, and exit keys

package e2e

import (
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestChat_HelpThenQuit(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e tests skipped in short mode")
	}

	s := startMedassist(t, "chat")
	defer s.close()

	s.expectStringTimeout(t, "Watsonx Medical Assistant Chatbot", 5*time.Second)

	s.sendLine(t, "/help")
	s.expectStringTimeout(t, "Available commands", 5*time.Second)

	s.sendLine(t, "/quit")
	s.expectStringTimeout(t, "Goodbye", 5*time.Second)
	s.waitExit(t, 10*time.Second)
}

func TestChat_ConversationLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e tests skipped in short mode")
	}

	s := startMedassist(t, "chat")
	defer s.close()
	s.expectStringTimeout(t, "Chatbot", 5*time.Second)

	s.sendLine(t, "hello there")
	s.expectStringTimeout(t, "Assistant:", 10*time.Second)
	s.expectStringTimeout(t, "offline", 10*time.Second)

	s.sendLine(t, "/summary")
	s.expectStringTimeout(t, "exchanged", 10*time.Second)

	s.sendLine(t, "/clear")
	s.expectStringTimeout(t, "🧹 Conversation history has been cleared.", 10*time.Second)

	s.sendLine(t, "/exit")
	s.waitExit(t, 10*time.Second)
}

func TestChat_InteractiveSymptoms(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e tests skipped in short mode")
	}

	s := startMedassist(t, "chat")
	defer s.close()
	s.expectStringTimeout(t, "Chatbot", 5*time.Second)

	s.sendLine(t, "/symptoms")
	s.expectStringTimeout(t, "describe your symptoms", 5*time.Second)
	s.sendLine(t, "headache")
	s.expectStringTimeout(t, "Patient age", 5*time.Second)
	s.sendLine(t, "30")
	s.expectStringTimeout(t, "Patient gender", 5*time.Second)
	s.sendLine(t, "female")

	s.expectStringTimeout(t, "Medical Analysis:", 10*time.Second)
	s.expectStringTimeout(t, "hydrated", 10*time.Second)

	s.sendLine(t, "/quit")
	s.waitExit(t, 10*time.Second)
}

func TestChat_UnknownCommandSuggests(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e tests skipped in short mode")
	}

	s := startMedassist(t, "chat")
	defer s.close()
	s.expectStringTimeout(t, "Chatbot", 5*time.Second)

	s.sendLine(t, "/sumary")
	s.expectStringTimeout(t, "Did you mean /summary?", 5*time.Second)

	s.sendLine(t, "/quit")
	s.waitExit(t, 10*time.Second)
}

func TestChat_CtrlD_Exits(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e tests skipped in short mode")
	}

	s := startMedassist(t, "chat")
	defer s.close()
	s.expectStringTimeout(t, "You:", 5*time.Second)

	s.sendCtrl(t, 'd')
	s.expectStringTimeout(t, "Goodbye", 5*time.Second)
	s.waitExit(t, 10*time.Second)
}

func TestAsk_PrintsReply(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e tests skipped in short mode")
	}

	configPath, env := writeEnv(t)
	cmd := exec.Command(binPath, "--config", configPath, "ask", "symptoms:", "sore", "throat")
	cmd.Env = env
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(string(out), "Reported symptoms: sore throat") {
		t.Errorf("unexpected output %q", out)
	}
}
