package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Mask replaces sensitive values in the audit trail.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks audit data values whose key
// matches one of the patterns, at any nesting depth. Entity contexts are
// persisted untouched since guards and actions read them.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, entityType, entityID string, state *domain.EntityState, audit *domain.AuditEntry) error {
	if audit == nil || len(audit.Data) == 0 {
		return m.next.Save(ctx, entityType, entityID, state, audit)
	}

	// Deep clone to avoid side effects on the caller's audit entry.
	masked := *audit
	masked.Data = audit.Data.Clone()
	maskMap(masked.Data, m.patterns)

	return m.next.Save(ctx, entityType, entityID, state, &masked)
}

func (m *piiMiddleware) Load(ctx context.Context, entityType, entityID string) (*domain.EntityState, error) {
	return m.next.Load(ctx, entityType, entityID)
}

func (m *piiMiddleware) Query(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error) {
	return m.next.Query(ctx, entityType, filter)
}

func (m *piiMiddleware) History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error) {
	return m.next.History(ctx, entityType, entityID, limit, offset)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}

		switch x := v.(type) {
		case map[string]any:
			maskMap(x, patterns)
		case domain.Context:
			maskMap(x, patterns)
		case []any:
			for _, item := range x {
				if sub, ok := item.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}
