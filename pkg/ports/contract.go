package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractEpoch = time.Date(2025, 3, 14, 15, 9, 26, 535897932, time.UTC)

func contractState(entityType, id, stateName string, version int64) *domain.EntityState {
	return &domain.EntityState{
		ID:         id,
		EntityType: entityType,
		StateName:  stateName,
		Context:    domain.Context{"version_seen": fmt.Sprint(version)},
		Version:    version,
		CreatedAt:  contractEpoch,
		UpdatedAt:  contractEpoch.Add(time.Duration(version) * time.Second),
	}
}

func contractAudit(s *domain.EntityState, event, from string) *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:         fmt.Sprintf("%s-%s-%d", s.EntityType, s.ID, s.Version),
		Timestamp:  s.UpdatedAt,
		EntityType: s.EntityType,
		EntityID:   s.ID,
		Event:      event,
		From:       from,
		To:         s.StateName,
		Result:     domain.AuditSuccess,
		Duration:   time.Duration(s.Version) * time.Millisecond,
	}
}

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
// The store may be shared across subtests; every subtest uses its own entity type.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	prefix := "contract" + time.Now().Format("150405.000000000")

	t.Run("Save and Load", func(t *testing.T) {
		typ := prefix + "-roundtrip"
		state := contractState(typ, "o-1", "draft", 1)
		state.Context["foo"] = "bar"
		state.Context["count"] = 42
		state.Context["nested"] = map[string]any{"ok": true}

		audit := contractAudit(state, "CREATE", "draft")
		audit.Actor = "alice"
		audit.Data = domain.Context{"k": "v"}

		require.NoError(t, store.Save(ctx, typ, "o-1", state, audit), "Save should not return error")

		loaded, err := store.Load(ctx, typ, "o-1")
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "o-1", loaded.ID)
		assert.Equal(t, typ, loaded.EntityType)
		assert.Equal(t, "draft", loaded.StateName)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, "bar", loaded.Context["foo"])
		// JSON backends decode numbers as float64.
		assert.EqualValues(t, 42, loaded.Context["count"])
		assert.Equal(t, map[string]any{"ok": true}, loaded.Context["nested"])
		assert.True(t, state.CreatedAt.Equal(loaded.CreatedAt), "CreatedAt must keep nanosecond precision, got %s", loaded.CreatedAt)
		assert.True(t, state.UpdatedAt.Equal(loaded.UpdatedAt), "UpdatedAt must keep nanosecond precision, got %s", loaded.UpdatedAt)

		loaded.Context["foo"] = "mutated"
		again, err := store.Load(ctx, typ, "o-1")
		require.NoError(t, err)
		assert.Equal(t, "bar", again.Context["foo"], "loaded state must not alias stored state")

		history, err := store.History(ctx, typ, "o-1", 0, 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		got := history[0]
		assert.Equal(t, audit.ID, got.ID)
		assert.Equal(t, "CREATE", got.Event)
		assert.Equal(t, "alice", got.Actor)
		assert.Equal(t, "v", got.Data["k"])
		assert.Equal(t, domain.AuditSuccess, got.Result)
		assert.Equal(t, audit.Duration, got.Duration)
		assert.True(t, audit.Timestamp.Equal(got.Timestamp))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"-missing", "nobody")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEntityNotFound)

		var se *domain.StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, domain.OpLoad, se.Op)
	})

	t.Run("Entity Types Are Isolated", func(t *testing.T) {
		typ := prefix + "-isolated"
		s := contractState(typ, "shared-id", "draft", 1)
		require.NoError(t, store.Save(ctx, typ, "shared-id", s, contractAudit(s, "CREATE", "draft")))

		_, err := store.Load(ctx, typ+"-other", "shared-id")
		assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	})

	t.Run("Version Conflict", func(t *testing.T) {
		typ := prefix + "-cas"

		skipped := contractState(typ, "o-1", "draft", 2)
		err := store.Save(ctx, typ, "o-1", skipped, contractAudit(skipped, "E", "draft"))
		assert.ErrorIs(t, err, domain.ErrVersionConflict, "first save must carry version 1")

		v1 := contractState(typ, "o-1", "draft", 1)
		require.NoError(t, store.Save(ctx, typ, "o-1", v1, contractAudit(v1, "E1", "draft")))

		stale := contractState(typ, "o-1", "review", 1)
		err = store.Save(ctx, typ, "o-1", stale, contractAudit(stale, "E1", "draft"))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		var se *domain.StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, domain.OpSave, se.Op)

		loaded, err := store.Load(ctx, typ, "o-1")
		require.NoError(t, err)
		assert.Equal(t, "draft", loaded.StateName, "rejected save must not change state")

		history, err := store.History(ctx, typ, "o-1", 0, 0)
		require.NoError(t, err)
		assert.Len(t, history, 1, "rejected save must not append audit")

		v2 := contractState(typ, "o-1", "review", 2)
		require.NoError(t, store.Save(ctx, typ, "o-1", v2, contractAudit(v2, "E2", "draft")))
	})

	t.Run("History Order and Paging", func(t *testing.T) {
		typ := prefix + "-history"
		from := "draft"
		for v := int64(1); v <= 3; v++ {
			s := contractState(typ, "o-1", fmt.Sprintf("s%d", v), v)
			require.NoError(t, store.Save(ctx, typ, "o-1", s, contractAudit(s, fmt.Sprintf("E%d", v), from)))
			from = s.StateName
		}

		events := func(entries []*domain.AuditEntry) []string {
			out := make([]string, 0, len(entries))
			for _, e := range entries {
				out = append(out, e.Event)
			}
			return out
		}

		all, err := store.History(ctx, typ, "o-1", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"E3", "E2", "E1"}, events(all), "history is newest first")

		page, err := store.History(ctx, typ, "o-1", 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"E2"}, events(page))

		tail, err := store.History(ctx, typ, "o-1", 10, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"E1"}, events(tail))

		past, err := store.History(ctx, typ, "o-1", 0, 5)
		require.NoError(t, err)
		assert.Empty(t, past)

		none, err := store.History(ctx, typ, "never-saved", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Query", func(t *testing.T) {
		typ := prefix + "-query"
		for _, e := range []struct{ id, state string }{{"b", "review"}, {"c", "draft"}, {"a", "draft"}} {
			s := contractState(typ, e.id, e.state, 1)
			require.NoError(t, store.Save(ctx, typ, e.id, s, contractAudit(s, "CREATE", "draft")))
		}
		other := contractState(typ+"-other", "z", "draft", 1)
		require.NoError(t, store.Save(ctx, typ+"-other", "z", other, contractAudit(other, "CREATE", "draft")))

		ids := func(states []*domain.EntityState) []string {
			out := make([]string, 0, len(states))
			for _, s := range states {
				out = append(out, s.ID)
			}
			return out
		}

		all, err := store.Query(ctx, typ, domain.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(all), "query is ordered by id")

		drafts, err := store.Query(ctx, typ, domain.Filter{State: "draft"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids(drafts))

		page, err := store.Query(ctx, typ, domain.Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(page))

		empty, err := store.Query(ctx, prefix+"-unknown", domain.Filter{})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
