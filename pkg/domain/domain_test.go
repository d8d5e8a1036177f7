package domain

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/aretw0/espalier/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_CloneIsDeep(t *testing.T) {
	src := Context{
		"count":  1,
		"nested": map[string]any{"k": "v"},
		"list":   []any{map[string]any{"x": 1}},
	}

	c := src.Clone()
	c["count"] = 2
	c["nested"].(map[string]any)["k"] = "changed"
	c["list"].([]any)[0].(map[string]any)["x"] = 99

	assert.Equal(t, 1, src["count"])
	assert.Equal(t, "v", src["nested"].(map[string]any)["k"])
	assert.Equal(t, 1, src["list"].([]any)[0].(map[string]any)["x"])

	assert.NotNil(t, Context(nil).Clone())
}

func TestMerge_IsShallow(t *testing.T) {
	base := Context{"count": 0, "meta": map[string]any{"a": 1, "b": 2}}
	data := Context{"count": 5, "meta": map[string]any{"a": 10}}

	got := Merge(base, data)

	assert.Equal(t, 5, got["count"])
	assert.Equal(t, map[string]any{"a": 10}, got["meta"], "nested maps are replaced, not merged")
	assert.Equal(t, 0, base["count"], "base must not be mutated")
}

func TestMerge_LayerPrecedence(t *testing.T) {
	got := Merge(Context{"a": 1}, Context{"a": 2, "b": 2}, Context{"b": 3})
	assert.Equal(t, Context{"a": 2, "b": 3}, got)
}

func testSpec() *Specification {
	return &Specification{
		ID:            "order",
		ContextSchema: schema.Schema{},
		InitialState:  "draft",
		States: []State{
			{Name: "draft", On: []Transition{{Event: "SUBMIT", Target: "review"}, {Event: "CANCEL", Target: "cancelled"}}},
			{Name: "review", On: []Transition{{Event: "APPROVE", Target: "done"}}},
			{Name: "done"},
			{Name: "cancelled"},
			{Name: "orphan", On: []Transition{{Event: "BACK", Target: "draft"}}},
		},
		Guards:  map[string]Guard{"ok": func(Context) bool { return true }, "nil": nil},
		Actions: map[string]Action{"noop": func(c Context) Context { return c }},
	}
}

func TestSpecification_Lookup(t *testing.T) {
	for _, sealed := range []bool{false, true} {
		t.Run(fmt.Sprintf("sealed=%v", sealed), func(t *testing.T) {
			spec := testSpec()
			if sealed {
				spec.Seal()
				spec.Seal()
			}
			assert.Equal(t, sealed, spec.Sealed())

			st, ok := spec.State("draft")
			require.True(t, ok)
			assert.Equal(t, []string{"SUBMIT", "CANCEL"}, st.Events())

			tr, ok := st.Transition("CANCEL")
			require.True(t, ok)
			assert.Equal(t, "cancelled", tr.Target)

			_, ok = st.Transition("APPROVE")
			assert.False(t, ok)

			_, ok = spec.State("ghost")
			assert.False(t, ok)

			done, _ := spec.State("done")
			assert.True(t, done.Terminal())
		})
	}
}

func TestSpecification_NamedFunctions(t *testing.T) {
	spec := testSpec()

	_, ok := spec.Guard("ok")
	assert.True(t, ok)
	_, ok = spec.Guard("nil")
	assert.False(t, ok, "nil guard entries count as missing")
	_, ok = spec.Action("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"nil", "ok"}, spec.GuardNames())
	assert.Equal(t, []string{"noop"}, spec.ActionNames())
}

func TestGraph_Reachable(t *testing.T) {
	g := NewGraph(testSpec())
	start, ok := g.Index("draft")
	require.True(t, ok)

	seen := g.Reachable(start)
	var unreachable []string
	for i, reached := range seen {
		if !reached {
			unreachable = append(unreachable, g.Name(i))
		}
	}
	assert.Equal(t, []string{"orphan"}, unreachable)
	assert.Len(t, g.Reachable(-1), g.Len())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&InvalidStateError{State: "x"}, KindInvalidState},
		{&TransitionNotAllowedError{From: "a", Event: "E"}, KindTransitionNotAllowed},
		{&GuardNotFoundError{Guard: "g"}, KindGuardNotFound},
		{&ActionNotFoundError{Action: "a"}, KindActionNotFound},
		{&GuardFailedError{Guard: "g"}, KindGuardFailed},
		{&ValidationError{Reason: "bad"}, KindValidation},
		{&SpecNotFoundError{ID: "s"}, KindSpecNotFound},
		{&SpecError{Reason: "unknown target"}, KindSpec},
		{fmt.Errorf("register: %w", ErrSpecAlreadyRegistered), KindSpec},
		{NewStorageError(OpLoad, "order", "1", ErrEntityNotFound), KindNotFound},
		{NewStorageError(OpSave, "order", "1", ErrVersionConflict), KindVersionConflict},
		{NewStorageError(OpQuery, "order", "", errors.New("disk")), KindStorage},
		{&PolicyError{Actor: "bob"}, KindPolicy},
		{errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "KindOf(%v)", tt.err)
	}
}

func TestNewStorageError_DoesNotDoubleWrap(t *testing.T) {
	inner := NewStorageError(OpLoad, "order", "1", ErrEntityNotFound)
	outer := NewStorageError(OpSave, "order", "1", inner)

	assert.Same(t, inner, outer)
	assert.Nil(t, NewStorageError(OpSave, "order", "1", nil))

	var se *StorageError
	require.ErrorAs(t, outer, &se)
	assert.Equal(t, OpLoad, se.Op)
	assert.ErrorIs(t, outer, ErrEntityNotFound)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t,
		`event "PAY" not allowed in state "draft" (available: [SUBMIT, CANCEL])`,
		(&TransitionNotAllowedError{From: "draft", Event: "PAY", Available: []string{"SUBMIT", "CANCEL"}}).Error())
	assert.Equal(t,
		`specification "order": unknown target "ghost" (state "draft", event "GO")`,
		(&SpecError{SpecID: "order", Reason: "unknown target", Target: "ghost", State: "draft", Event: "GO"}).Error())

	cause := errors.New("field \"count\": required")
	verr := &ValidationError{Reason: "schema", Cause: cause}
	assert.ErrorIs(t, verr, cause)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Page(items, 0, 0))
	assert.Equal(t, []int{2, 3}, Page(items, 2, 1))
	assert.Equal(t, []int{5}, Page(items, 10, 4))
	assert.Equal(t, []int{}, Page(items, 2, 9))
	assert.True(t, reflect.DeepEqual([]int{1}, Page(items, 1, -3)))
}

func TestEntityState_Clone(t *testing.T) {
	s := &EntityState{ID: "1", Context: Context{"a": 1}}
	c := s.Clone()
	c.Context["a"] = 2
	assert.Equal(t, 1, s.Context["a"])
	assert.Nil(t, (*EntityState)(nil).Clone())
}
