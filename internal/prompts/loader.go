// ABOUTME: Message catalog loader with disk-first, embed fallback strategy
// ABOUTME: An override file only needs the keys it changes; the rest come from the embedded catalog

package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog holds every user-facing text shown by the front-ends.
type Catalog struct {
	AppName    string  `yaml:"app_name"`
	Version    string  `yaml:"version"`
	Welcome    string  `yaml:"welcome"`
	Disclaimer string  `yaml:"disclaimer"`
	Web        Web     `yaml:"web"`
	CLI        CLI     `yaml:"cli"`
	Formats    Formats `yaml:"formats"`
}

// Web holds texts specific to the browser interface.
type Web struct {
	Help string `yaml:"help"`
}

// CLI holds texts specific to the terminal interface.
type CLI struct {
	Banner         string `yaml:"banner"`
	Help           string `yaml:"help"`
	Prompt         string `yaml:"prompt"`
	Goodbye        string `yaml:"goodbye"`
	AssistantLabel string `yaml:"assistant_label"`
	AnalysisHeader string `yaml:"analysis_header"`
	SummaryHeader  string `yaml:"summary_header"`
	SummaryWait    string `yaml:"summary_wait"`
	InfoHeader     string `yaml:"info_header"`
	SymptomsIntro  string `yaml:"symptoms_intro"`
	SymptomsPrompt string `yaml:"symptoms_prompt"`
	AgePrompt      string `yaml:"age_prompt"`
	GenderPrompt   string `yaml:"gender_prompt"`
	Thinking       string `yaml:"thinking"`
	Analyzing      string `yaml:"analyzing"`
	UnknownCommand string `yaml:"unknown_command"`
	Suggestion     string `yaml:"suggestion"`
	NoSuggestion   string `yaml:"no_suggestion"`
	NoSymptoms     string `yaml:"no_symptoms"`
	EmptyPrefix    string `yaml:"empty_prefix"`
	InvalidAge     string `yaml:"invalid_age"`
}

// Formats wrap backend outcomes before they are shown. Each is a
// text/template over Text, Error, Name, and Disclaimer.
type Formats struct {
	Analysis        string `yaml:"analysis"`
	Summary         string `yaml:"summary"`
	SummaryEmpty    string `yaml:"summary_empty"`
	SummaryError    string `yaml:"summary_error"`
	ServerInfo      string `yaml:"server_info"`
	ServerInfoEmpty string `yaml:"server_info_empty"`
	ServerInfoError string `yaml:"server_info_error"`
	Greeting        string `yaml:"greeting"`
	GreetingEmpty   string `yaml:"greeting_empty"`
	GreetingError   string `yaml:"greeting_error"`
	Cleared         string `yaml:"cleared"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It panics if the embedded file is
// invalid, which a test guards against.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := parse(nil)
		if err != nil {
			panic(fmt.Sprintf("embedded message catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load reads messages.yaml from overrideDir on top of the embedded catalog.
// An empty overrideDir or a missing file yields the embedded catalog.
func Load(overrideDir string) (*Catalog, error) {
	if overrideDir == "" {
		return parse(nil)
	}
	data, err := os.ReadFile(filepath.Join(overrideDir, catalogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s override: %w", catalogFile, err)
	}
	return parse(data)
}

// parse decodes the embedded catalog, then overlays override when given.
func parse(override []byte) (*Catalog, error) {
	base, err := fs.ReadFile(embeddedFS, "templates/"+catalogFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s: %w", catalogFile, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(base, &c); err != nil {
		return nil, fmt.Errorf("parse embedded %s: %w", catalogFile, err)
	}
	if override != nil {
		// yaml.v3 leaves fields absent from the document untouched.
		if err := yaml.Unmarshal(override, &c); err != nil {
			return nil, fmt.Errorf("parse %s override: %w", catalogFile, err)
		}
	}
	return &c, nil
}

// Render fills a format. A broken template falls back to the raw text so a
// bad override never hides a backend reply.
func (c *Catalog) Render(format string, vars map[string]string) string {
	merged := map[string]string{"Disclaimer": c.Disclaimer, "AppName": c.AppName}
	for k, v := range vars {
		merged[k] = v
	}
	out, err := RenderVariables(format, merged)
	if err != nil {
		if text, ok := vars["Text"]; ok {
			return text
		}
		return format
	}
	return out
}

// Analysis wraps a symptom analysis with the medical disclaimer.
func (c *Catalog) Analysis(text string) string {
	return c.Render(c.Formats.Analysis, map[string]string{"Text": text})
}

// Summary formats a conversation summary, or the empty notice.
func (c *Catalog) Summary(text string) string {
	if text == "" {
		return c.Formats.SummaryEmpty
	}
	return c.Render(c.Formats.Summary, map[string]string{"Text": text})
}

// ServerInfo formats server information, or the unavailable notice.
func (c *Catalog) ServerInfo(text string) string {
	if text == "" {
		return c.Formats.ServerInfoEmpty
	}
	return c.Render(c.Formats.ServerInfo, map[string]string{"Text": text})
}

// Greeting formats a greeting for name.
func (c *Catalog) Greeting(name, text string) string {
	if text == "" {
		return c.Render(c.Formats.GreetingEmpty, map[string]string{"Name": name})
	}
	return c.Render(c.Formats.Greeting, map[string]string{"Text": text, "Name": name})
}

// Error formats an error with one of the *_error formats.
func (c *Catalog) Error(format, msg string) string {
	return c.Render(format, map[string]string{"Error": msg})
}
