// ABOUTME: Conversation entries kept per web session and the length-based trim
// ABOUTME: Lengths are counted in user-perceived characters, not bytes

package history

import "github.com/rivo/uniseg"

// Role identifies who produced an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// DefaultMaxChars is the per-session cap applied by the web front-end.
const DefaultMaxChars = 4000

// minKept is the number of entries Trim never evicts below.
const minKept = 2

// Entry is one message in a conversation.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Length returns the total content length of entries in grapheme clusters.
func Length(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += uniseg.GraphemeClusterCount(e.Content)
	}
	return n
}

// Trim evicts the oldest entries while the total length exceeds maxChars and
// more than two entries remain. The returned slice shares entries' backing
// array.
func Trim(entries []Entry, maxChars int) []Entry {
	total := Length(entries)
	for total > maxChars && len(entries) > minKept {
		total -= uniseg.GraphemeClusterCount(entries[0].Content)
		entries = entries[1:]
	}
	return entries
}
