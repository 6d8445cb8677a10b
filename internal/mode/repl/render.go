// ABOUTME: Output styling for the REPL: glamour markdown and lipgloss accents
// ABOUTME: Falls back to plain text when stdout is not a terminal

package repl

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// DefaultWidth is used when the terminal size is unknown.
const DefaultWidth = 80

// DetectTerminal reports whether f is a terminal and its column count.
func DetectTerminal(f *os.File) (styled bool, width int) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return false, DefaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return true, DefaultWidth
	}
	return true, w
}

// theme holds the accent styles. Without styling text passes through
// untouched, since lipgloss pads multi-line blocks.
type theme struct {
	styled    bool
	prompt    lipgloss.Style
	label     lipgloss.Style
	errorText lipgloss.Style
	notice    lipgloss.Style
	rule      lipgloss.Style
}

func newTheme(w io.Writer, styled bool) theme {
	if !styled {
		return theme{}
	}
	r := lipgloss.NewRenderer(w)
	r.SetHasDarkBackground(true)
	return theme{
		styled:    true,
		prompt:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		label:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		errorText: r.NewStyle().Foreground(lipgloss.Color("9")),
		notice:    r.NewStyle().Faint(true),
		rule:      r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (t theme) paint(style lipgloss.Style, s string) string {
	if !t.styled {
		return s
	}
	return style.Render(s)
}

// ruleFor returns a separator as wide as the widest line of text.
func ruleFor(text string) string {
	width := 0
	for line := range strings.SplitSeq(text, "\n") {
		width = max(width, runewidth.StringWidth(line))
	}
	return strings.Repeat("=", max(width, 1))
}

// markdown renders assistant replies with glamour, caching by content and
// width. Not safe for concurrent use; the REPL is single-threaded.
type markdown struct {
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newMarkdown(width int) *markdown {
	if width < 20 {
		width = DefaultWidth
	}
	return &markdown{width: width, cache: make(map[string]string)}
}

// Render returns md styled for the terminal, or md itself on failure.
func (m *markdown) Render(md string) string {
	if md == "" {
		return ""
	}
	key := cacheKey(md, m.width)
	if cached, ok := m.cache[key]; ok {
		return cached
	}
	if m.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(m.width-2),
		)
		if err != nil {
			return md
		}
		m.renderer = r
	}
	rendered, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	rendered = strings.TrimRight(rendered, "\n ")
	m.cache[key] = rendered
	return rendered
}

func cacheKey(content string, width int) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x:%d", h[:8], width)
}
