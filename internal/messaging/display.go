package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/BTreeMap/JournalPipe/internal/flow"
)

// OptionBullet prefixes each option line.
const OptionBullet = "• "

// Display adapts a Service to flow.Display. WhatsApp has no reply keyboards,
// so options are rendered as a bullet list the user answers by label.
type Display struct {
	service Service
}

var _ flow.Display = (*Display)(nil)

// NewDisplay returns a Display sending through service.
func NewDisplay(service Service) *Display {
	return &Display{service: service}
}

// Display sends text, split into pieces of at most flow.MaxMessageLength.
func (d *Display) Display(ctx context.Context, userID, text string) error {
	for i, chunk := range flow.ChunkText(text, flow.MaxMessageLength) {
		if err := d.service.SendMessage(ctx, userID, chunk); err != nil {
			return fmt.Errorf("display chunk %d to %s: %w", i+1, userID, err)
		}
	}
	return nil
}

// DisplayWithOptions sends text followed by the option list.
func (d *Display) DisplayWithOptions(ctx context.Context, userID, text string, options []string) error {
	return d.Display(ctx, userID, FormatOptions(text, options))
}

// FormatOptions appends one bullet line per option to text.
func FormatOptions(text string, options []string) string {
	if len(options) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	for _, opt := range options {
		b.WriteString("\n")
		b.WriteString(OptionBullet)
		b.WriteString(opt)
	}
	return b.String()
}
