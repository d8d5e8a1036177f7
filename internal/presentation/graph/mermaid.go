package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// GraphOverlay contains entity data to visualize on the graph.
type GraphOverlay struct {
	VisitedStates []string
	CurrentState  string
}

// OverlayFor builds an overlay from an entity and its audit trail (newest first).
func OverlayFor(state *domain.EntityState, history []*domain.AuditEntry) *GraphOverlay {
	o := &GraphOverlay{}
	if state != nil {
		o.CurrentState = state.StateName
	}
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Result != domain.AuditSuccess {
			continue
		}
		o.VisitedStates = append(o.VisitedStates, e.From)
		if e.To != "" {
			o.VisitedStates = append(o.VisitedStates, e.To)
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart syntax string from a specification.
// It applies semantic styling:
// - Initial: ((Circle))
// - Terminal: ([Stadium])
// - Default: [Rectangle]
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(spec *domain.Specification, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, st := range spec.States {
		safeID := sanitizeMermaidID(st.Name)

		opener, closer := "[", "]"
		switch {
		case st.Name == spec.InitialState:
			opener, closer = "((", "))"
		case st.Terminal():
			opener, closer = "([", "])"
		}

		label := st.Name
		if st.Entry != "" {
			label += " <br/> ▶ " + st.Entry
		}
		if st.Exit != "" {
			label += " <br/> ◀ " + st.Exit
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(label), closer)
	}

	for _, st := range spec.States {
		safeID := sanitizeMermaidID(st.Name)
		for _, t := range st.On {
			label := t.Event
			if t.Guard != "" {
				label += " [" + t.Guard + "]"
			}
			if t.Action != "" {
				label += " / " + t.Action
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escapeLabel(label), sanitizeMermaidID(t.Target))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, name := range overlay.VisitedStates {
			safeID := sanitizeMermaidID(name)
			if !visitedSet[safeID] && safeID != "" && safeID != sanitizeMermaidID(overlay.CurrentState) {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentState != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentState))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
