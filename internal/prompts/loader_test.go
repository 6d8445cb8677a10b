// ABOUTME: Tests for the message catalog loader with disk/embed fallback
// ABOUTME: Validates embedded defaults, partial overrides, and format helpers

package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_EmbeddedCatalogComplete(t *testing.T) {
	t.Parallel()

	c := Default()
	fields := map[string]string{
		"app_name":             c.AppName,
		"welcome":              c.Welcome,
		"disclaimer":           c.Disclaimer,
		"web.help":             c.Web.Help,
		"cli.help":             c.CLI.Help,
		"cli.goodbye":          c.CLI.Goodbye,
		"formats.analysis":     c.Formats.Analysis,
		"formats.summary":      c.Formats.Summary,
		"formats.greeting":     c.Formats.Greeting,
		"formats.server_info":  c.Formats.ServerInfo,
		"formats.greeting_err": c.Formats.GreetingError,
	}
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			t.Errorf("embedded catalog missing %s", name)
		}
	}
	if !strings.Contains(c.Welcome, "symptoms: [your symptoms]") {
		t.Errorf("welcome text should explain the symptoms prefix; got %q", c.Welcome)
	}
}

func TestLoad_MissingOverrideUsesEmbedded(t *testing.T) {
	t.Parallel()

	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Welcome != Default().Welcome {
		t.Error("expected embedded welcome text")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	override := "app_name: Clinic Helper\ncli:\n  goodbye: bye\n"
	if err := os.WriteFile(filepath.Join(dir, "messages.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.AppName != "Clinic Helper" || c.CLI.Goodbye != "bye" {
		t.Errorf("override not applied: %q %q", c.AppName, c.CLI.Goodbye)
	}
	if c.CLI.Help != Default().CLI.Help {
		t.Error("keys absent from the override must keep embedded values")
	}
}

func TestLoad_InvalidOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "messages.yaml"), []byte("cli: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestCatalog_Formats(t *testing.T) {
	t.Parallel()

	c := Default()

	got := c.Analysis("Rest and fluids.")
	if !strings.HasPrefix(got, "🏥 **Medical Analysis:**") || !strings.Contains(got, "Rest and fluids.") || !strings.Contains(got, c.Disclaimer) {
		t.Errorf("Analysis() = %q", got)
	}
	if got := c.Summary(""); got != "📋 No conversation to summarise yet." {
		t.Errorf("Summary(\"\") = %q", got)
	}
	if got := c.Summary("two topics"); !strings.HasSuffix(got, "two topics") {
		t.Errorf("Summary() = %q", got)
	}
	if got := c.ServerInfo(""); got != "ℹ️ Server information not available." {
		t.Errorf("ServerInfo(\"\") = %q", got)
	}
	if got := c.Greeting("Ana", "Hello, Ana!"); got != "👋 Hello, Ana!" {
		t.Errorf("Greeting() = %q", got)
	}
	if got := c.Greeting("Ana", ""); got != "👋 Hello Ana! Welcome to the Medical Assistant." {
		t.Errorf("Greeting() empty = %q", got)
	}
	if got := c.Error(c.Formats.SummaryError, "boom"); got != "Summary error: boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCatalog_RenderBrokenTemplateFallsBack(t *testing.T) {
	t.Parallel()

	c := Default()
	if got := c.Render("{{.Text", map[string]string{"Text": "raw reply"}); got != "raw reply" {
		t.Errorf("Render() = %q; want raw text", got)
	}
}
