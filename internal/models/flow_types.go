// Package models defines flow type definitions to avoid circular imports.
package models

import (
	"strings"
	"unicode"
)

// FlowType names a conversation flow.
type FlowType string

// Flow type constants. FlowTypeNone means the user is idle at the main menu.
const (
	FlowTypeNone            FlowType = ""
	FlowTypeNewEntry        FlowType = "new_entry"
	FlowTypeRetrieveEntries FlowType = "retrieve_entries"
	FlowTypeInsights        FlowType = "insights"
)

// IsValidFlowType checks if the given flow type names a real flow.
func IsValidFlowType(ft FlowType) bool {
	switch ft {
	case FlowTypeNewEntry, FlowTypeRetrieveEntries, FlowTypeInsights:
		return true
	default:
		return false
	}
}

// EventKind classifies an inbound user event.
type EventKind string

const (
	// EventKindCommand is a slash command such as /start.
	EventKindCommand EventKind = "command"
	// EventKindText is free text.
	EventKindText EventKind = "text"
	// EventKindMenuSelection is one of the option labels offered to the user.
	EventKindMenuSelection EventKind = "menu_selection"
)

// Event is a single inbound user action consumed by the router and flow engine.
// Payload is the text as the user sent it, except for commands where it is the
// lower-cased command name without the leading slash.
type Event struct {
	UserID  string    `json:"user_id"`
	Kind    EventKind `json:"kind"`
	Payload string    `json:"payload"`
}

// Selected reports whether the event picks the given option label.
func (e Event) Selected(label string) bool {
	if e.Kind == EventKindCommand {
		return false
	}
	return NormalizeLabel(e.Payload) == NormalizeLabel(label)
}

// InsightMode selects the prompt shape used for insight generation.
type InsightMode string

const (
	// InsightModeEntry produces coaching insights for a single entry.
	InsightModeEntry InsightMode = "entry"
	// InsightModeOverview produces a summary over several recent entries.
	InsightModeOverview InsightMode = "overview"
)

// IsValidInsightMode checks if the given insight mode is supported.
func IsValidInsightMode(m InsightMode) bool {
	return m == InsightModeEntry || m == InsightModeOverview
}

// Option labels shown to users.
const (
	LabelNewEntry         = "New Entry"
	LabelRetrieveEntries  = "Retrieve Entries"
	LabelGetInsights      = "Get Insights"
	LabelHelp             = "Help"
	LabelCancel           = "Cancel"
	LabelLast7Days        = "Last 7 days"
	LabelLast30Days       = "Last 30 days"
	LabelCustomRange      = "Custom range"
	LabelAllEntries       = "All entries"
	LabelBackToMainMenu   = "Back to Main Menu"
	LabelBackToEntries    = "Back to Entries"
	LabelGetEntryInsights = "Get Entry Insights"
)

// OptionLabels lists every label the bot ever offers.
var OptionLabels = []string{
	LabelNewEntry,
	LabelRetrieveEntries,
	LabelGetInsights,
	LabelHelp,
	LabelCancel,
	LabelLast7Days,
	LabelLast30Days,
	LabelCustomRange,
	LabelAllEntries,
	LabelBackToMainMenu,
	LabelBackToEntries,
	LabelGetEntryInsights,
}

// MainMenuOptions is the idle keyboard.
var MainMenuOptions = []string{LabelNewEntry, LabelRetrieveEntries, LabelGetInsights, LabelHelp}

// NormalizeLabel folds a label for comparison: leading emoji and symbols are
// dropped, surrounding whitespace trimmed, and case folded.
func NormalizeLabel(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToLower(strings.TrimSpace(s))
}

// CanonicalLabel returns the known option label matching text, if any.
func CanonicalLabel(text string) (string, bool) {
	normalized := NormalizeLabel(text)
	if normalized == "" {
		return "", false
	}
	for _, label := range OptionLabels {
		if NormalizeLabel(label) == normalized {
			return label, true
		}
	}
	return "", false
}
