package flow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/JournalPipe/internal/models"
)

const (
	// MaxMessageLength is the largest message sent in one piece, in characters.
	MaxMessageLength = 4096
	// PreviewLength is how many characters of an entry the list shows.
	PreviewLength = 50
)

// MsgSelectEntry follows every rendered entry list.
const MsgSelectEntry = "Enter the number of the entry you want to read in full, or type \"done\" to finish."

// renderEntryList formats the numbered entry list for a date range.
func renderEntryList(start, end time.Time, entries []models.JournalEntry, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entries from %s to %s:\n\n", start.In(loc).Format(models.DateLayout), end.In(loc).Format(models.DateLayout))
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s: %s...\n\n", i+1, e.Date.In(loc).Format(models.DateLayout), preview(e.Content, PreviewLength))
	}
	return b.String()
}

// preview returns the first n characters of s.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ChunkText splits s into consecutive pieces of at most limit characters.
// Joining the pieces yields s, byte for byte, even when s is not valid UTF-8.
func ChunkText(s string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var chunks []string
	start, count := 0, 0
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if count == limit {
			chunks = append(chunks, s[start:i])
			start, count = i, 0
		}
		i += size
		count++
	}
	return append(chunks, s[start:])
}

// showEntryList sends the cached entries in chunks followed by the selection prompt.
func showEntryList(ctx context.Context, sc *StepContext) {
	sess := sc.Session
	if sess.RangeStart == nil || sess.RangeEnd == nil {
		return
	}
	text := renderEntryList(*sess.RangeStart, *sess.RangeEnd, sess.CachedEntries, sc.engine.loc)
	for _, chunk := range ChunkText(text, MaxMessageLength) {
		sc.Say(ctx, chunk)
	}
	sc.Ask(ctx, MsgSelectEntry, models.LabelBackToMainMenu)
}
