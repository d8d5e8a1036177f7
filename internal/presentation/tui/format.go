package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/muesli/termenv"

	"github.com/aretw0/espalier/pkg/domain"
)

const (
	colorAllowed = "#22c55e"
	colorDenied  = "#ef4444"
	colorMuted   = "#94a3b8"
)

// Verdict formats a dry-run outcome as a single line.
func Verdict(v domain.Verdict, p termenv.Profile) string {
	if v.Allowed {
		mark := p.String("allowed").Foreground(p.Color(colorAllowed)).Bold()
		return fmt.Sprintf("%s -> %s", mark, v.Target)
	}
	mark := p.String("denied").Foreground(p.Color(colorDenied)).Bold()
	kind := p.String("[" + v.Kind + "]").Foreground(p.Color(colorMuted))
	return fmt.Sprintf("%s %s %s", mark, kind, v.Reason)
}

// Transition formats a committed transition as a single line.
func Transition(res *domain.TransitionResult, p termenv.Profile) string {
	arrow := p.String("--" + res.Event + "-->").Foreground(p.Color(colorMuted))
	to := p.String(res.To).Foreground(p.Color(colorAllowed)).Bold()
	return fmt.Sprintf("%s %s %s", res.From, arrow, to)
}

// EntityMarkdown describes one entity: its state, version and context.
func EntityMarkdown(s *domain.EntityState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s/%s\n\n", s.EntityType, s.ID)
	fmt.Fprintf(&b, "- **State**: `%s`\n", s.StateName)
	fmt.Fprintf(&b, "- **Version**: %d\n", s.Version)
	fmt.Fprintf(&b, "- **Updated**: %s\n", s.UpdatedAt.Format(time.RFC3339))

	if len(s.Context) == 0 {
		b.WriteString("\n_empty context_\n")
		return b.String()
	}

	b.WriteString("\n| Field | Value |\n|---|---|\n")
	for _, k := range sortedKeys(s.Context) {
		fmt.Fprintf(&b, "| %s | %s |\n", k, cell(s.Context[k]))
	}
	return b.String()
}

// EntitiesMarkdown lists entities as a table.
func EntitiesMarkdown(entityType string, states []*domain.EntityState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", entityType)
	if len(states) == 0 {
		b.WriteString("_no entities_\n")
		return b.String()
	}
	b.WriteString("| ID | State | Version | Updated |\n|---|---|---|---|\n")
	for _, s := range states {
		fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", s.ID, s.StateName, s.Version, s.UpdatedAt.Format(time.RFC3339))
	}
	return b.String()
}

// HistoryMarkdown renders an audit trail (newest first) as a table.
func HistoryMarkdown(entityType, entityID string, entries []*domain.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s/%s history\n\n", entityType, entityID)
	if len(entries) == 0 {
		b.WriteString("_no history_\n")
		return b.String()
	}
	b.WriteString("| Time | Event | From | To | Actor | Result |\n|---|---|---|---|---|---|\n")
	for _, e := range entries {
		result := string(e.Result)
		if e.Error != "" {
			result += ": " + e.Error
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			e.Timestamp.Format(time.RFC3339), e.Event, e.From, e.To, e.Actor, escapeCell(result))
	}
	return b.String()
}

func cell(v any) string {
	switch x := v.(type) {
	case string:
		return escapeCell(x)
	case nil:
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return escapeCell(fmt.Sprint(v))
	}
	return escapeCell(string(data))
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
