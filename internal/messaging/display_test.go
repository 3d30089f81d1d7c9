package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/JournalPipe/internal/flow"
	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/twiliowhatsapp"
)

func TestFormatOptions(t *testing.T) {
	got := FormatOptions("Select a date range:", []string{models.LabelLast7Days, models.LabelAllEntries})
	want := "Select a date range:\n\n• Last 7 days\n• All entries"
	if got != want {
		t.Errorf("FormatOptions() = %q, want %q", got, want)
	}
	if got := FormatOptions("plain", nil); got != "plain" {
		t.Errorf("FormatOptions() without options = %q", got)
	}
}

func TestFormattedOptionsRoundTrip(t *testing.T) {
	for _, label := range models.OptionLabels {
		ev := Classify("15551234567", OptionBullet+label)
		if ev.Kind != models.EventKindMenuSelection || !ev.Selected(label) {
			t.Errorf("bullet line for %q classified as %+v", label, ev)
		}
	}
}

func TestDisplaySendsThroughService(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	d := NewDisplay(NewTwilioService(mock))
	ctx := context.Background()

	if err := d.Display(ctx, "15551234567", "hello"); err != nil {
		t.Fatalf("Display: %v", err)
	}
	if err := d.DisplayWithOptions(ctx, "15551234567", "Main Menu", models.MainMenuOptions); err != nil {
		t.Fatalf("DisplayWithOptions: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if sent[0].Body != "hello" {
		t.Errorf("first body = %q", sent[0].Body)
	}
	for _, label := range models.MainMenuOptions {
		if !strings.Contains(sent[1].Body, OptionBullet+label) {
			t.Errorf("menu message missing %q: %q", label, sent[1].Body)
		}
	}
}

func TestDisplaySplitsLongText(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	d := NewDisplay(NewTwilioService(mock))
	long := strings.Repeat("é", flow.MaxMessageLength*2+10)

	if err := d.Display(context.Background(), "15551234567", long); err != nil {
		t.Fatalf("Display: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(sent))
	}
	var joined strings.Builder
	for _, m := range sent {
		joined.WriteString(m.Body)
	}
	if joined.String() != long {
		t.Error("chunks do not reassemble the original text")
	}
}

func TestDisplayPropagatesSendError(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	mock.Err = errors.New("twilio down")
	d := NewDisplay(NewTwilioService(mock))

	if err := d.Display(context.Background(), "15551234567", "hello"); !errors.Is(err, mock.Err) {
		t.Errorf("Display() error = %v, want %v", err, mock.Err)
	}
}
