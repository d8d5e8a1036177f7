package runtime_test

import (
	"testing"
	"time"

	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newExecutor() *runtime.Executor {
	return runtime.NewExecutor(runtime.WithClock(func() time.Time { return fixedNow }))
}

func counterSpec() *domain.Specification {
	spec := &domain.Specification{
		ID:            "counter",
		ContextSchema: schema.Schema{"count": schema.Number()},
		InitialState:  "idle",
		States: []domain.State{
			{Name: "idle", On: []domain.Transition{{Event: "START", Target: "active"}}},
			{Name: "active"},
		},
	}
	spec.Seal()
	return spec
}

func entity(stateName string, ctx domain.Context) *domain.EntityState {
	return &domain.EntityState{ID: "c-1", EntityType: "counter", StateName: stateName, Context: ctx, Version: 3}
}

func TestExecute_SimpleTransitionKeepsContext(t *testing.T) {
	res, err := newExecutor().Execute(counterSpec(), entity("idle", domain.Context{"count": 0}), domain.Command{Event: "START"})
	require.NoError(t, err)

	assert.Equal(t, "idle", res.From)
	assert.Equal(t, "active", res.To)
	assert.Equal(t, "START", res.Event)
	assert.Equal(t, domain.Context{"count": 0}, res.NewContext)
	assert.Equal(t, domain.Context{"count": 0}, res.OldContext)
	assert.Equal(t, fixedNow, res.Timestamp)
}

func TestExecute_GuardGatesTransition(t *testing.T) {
	spec := counterSpec()
	spec.States[0].On[0].Guard = "positive"
	spec.Guards = map[string]domain.Guard{
		"positive": func(c domain.Context) bool {
			n, _ := c["count"].(int)
			return n > 0
		},
	}

	_, err := newExecutor().Execute(spec, entity("idle", domain.Context{"count": 0}), domain.Command{Event: "START"})
	var gf *domain.GuardFailedError
	require.ErrorAs(t, err, &gf)
	assert.Equal(t, "positive", gf.Guard)

	res, err := newExecutor().Execute(spec, entity("idle", domain.Context{"count": 5}), domain.Command{Event: "START"})
	require.NoError(t, err)
	assert.Equal(t, "active", res.To)
}

func TestExecute_GuardSeesCommandData(t *testing.T) {
	spec := counterSpec()
	spec.States[0].On[0].Guard = "positive"
	spec.Guards = map[string]domain.Guard{
		"positive": func(c domain.Context) bool {
			n, _ := c["count"].(int)
			return n > 0
		},
	}

	res, err := newExecutor().Execute(spec, entity("idle", domain.Context{"count": 0}), domain.Command{
		Event: "START",
		Data:  domain.Context{"count": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.NewContext["count"])
}

func lifecycleSpec(trace *[]string) *domain.Specification {
	return &domain.Specification{
		ID:            "job",
		ContextSchema: schema.Schema{"count": schema.Number(), "message": schema.Optional(schema.String())},
		InitialState:  "active",
		States: []domain.State{
			{Name: "active", Exit: "onExit", On: []domain.Transition{{Event: "FINISH", Target: "done", Action: "increment"}}},
			{Name: "done", Entry: "onEntry"},
		},
		Actions: map[string]domain.Action{
			"onExit": func(c domain.Context) domain.Context {
				*trace = append(*trace, "exit")
				c["message"] = "exited"
				return c
			},
			"increment": func(c domain.Context) domain.Context {
				*trace = append(*trace, "transition")
				c["count"] = c["count"].(int) + 1
				return c
			},
			"onEntry": func(c domain.Context) domain.Context {
				*trace = append(*trace, "entry")
				c["message"] = "entered"
				return c
			},
		},
	}
}

func TestExecute_ActionOrderExitTransitionEntry(t *testing.T) {
	var trace []string
	spec := lifecycleSpec(&trace)
	input := entity("active", domain.Context{"count": 0})

	res, err := newExecutor().Execute(spec, input, domain.Command{Event: "FINISH"})
	require.NoError(t, err)

	assert.Equal(t, []string{"exit", "transition", "entry"}, trace)
	assert.Equal(t, domain.Context{"count": 1, "message": "entered"}, res.NewContext)
	assert.Equal(t, domain.Context{"count": 0}, input.Context, "input state must not be mutated")
	assert.Equal(t, domain.Context{"message": "entered", "count": 1}, res.Changes())
}

func TestExecute_GuardShortCircuit(t *testing.T) {
	var trace []string
	spec := lifecycleSpec(&trace)
	spec.States[0].On[0].Guard = "never"
	spec.Guards = map[string]domain.Guard{"never": func(domain.Context) bool { return false }}
	input := entity("active", domain.Context{"count": 0})

	res, err := newExecutor().Execute(spec, input, domain.Command{Event: "FINISH"})
	assert.Nil(t, res)
	assert.ErrorAs(t, err, new(*domain.GuardFailedError))
	assert.Empty(t, trace, "no action may run when the guard fails")
	assert.Equal(t, domain.Context{"count": 0}, input.Context)
}

func TestExecute_TransitionNotAllowed(t *testing.T) {
	spec := &domain.Specification{
		ID:            "order",
		ContextSchema: schema.Schema{},
		InitialState:  "draft",
		States: []domain.State{
			{Name: "draft", On: []domain.Transition{
				{Event: "SUBMIT", Target: "review"},
				{Event: "CANCEL", Target: "review"},
				{Event: "ARCHIVE", Target: "review"},
			}},
			{Name: "review"},
		},
	}

	_, err := newExecutor().Execute(spec, entity("draft", nil), domain.Command{Event: "PAY"})
	var tna *domain.TransitionNotAllowedError
	require.ErrorAs(t, err, &tna)
	assert.Equal(t, "draft", tna.From)
	assert.Equal(t, "PAY", tna.Event)
	assert.Equal(t, []string{"SUBMIT", "CANCEL", "ARCHIVE"}, tna.Available)

	_, err = newExecutor().Execute(spec, entity("review", nil), domain.Command{Event: "SUBMIT"})
	require.ErrorAs(t, err, &tna)
	assert.Empty(t, tna.Available, "terminal states accept no events")
}

func TestExecute_InvalidState(t *testing.T) {
	_, err := newExecutor().Execute(counterSpec(), entity("vanished", nil), domain.Command{Event: "START"})
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "vanished", ise.State)
}

func TestExecute_SchemaIsLastGate(t *testing.T) {
	var trace []string
	spec := lifecycleSpec(&trace)
	spec.Actions["onEntry"] = func(c domain.Context) domain.Context {
		trace = append(trace, "entry")
		c["count"] = "not a number"
		return c
	}

	res, err := newExecutor().Execute(spec, entity("active", domain.Context{"count": 0}), domain.Command{Event: "FINISH"})
	assert.Nil(t, res)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotNil(t, ve.Cause)
	assert.Len(t, schema.FieldErrors(err), 1)
	assert.Equal(t, []string{"exit", "transition", "entry"}, trace, "validation runs after every action")
}

func TestExecute_DanglingReferences(t *testing.T) {
	t.Run("guard", func(t *testing.T) {
		spec := counterSpec()
		spec.States[0].On[0].Guard = "ghost"
		_, err := newExecutor().Execute(spec, entity("idle", domain.Context{"count": 0}), domain.Command{Event: "START"})
		assert.ErrorAs(t, err, new(*domain.GuardNotFoundError))
	})

	t.Run("action", func(t *testing.T) {
		var trace []string
		spec := lifecycleSpec(&trace)
		delete(spec.Actions, "onEntry")
		_, err := newExecutor().Execute(spec, entity("active", domain.Context{"count": 0}), domain.Command{Event: "FINISH"})
		var ae *domain.ActionNotFoundError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "onEntry", ae.Action)
	})
}

func TestExecute_StaticDataPrecedence(t *testing.T) {
	spec := counterSpec()
	spec.ContextSchema = schema.Schema{}
	spec.States[0].On[0].StaticData = domain.Context{"priority": "low", "source": "spec"}

	res, err := newExecutor().Execute(spec, entity("idle", domain.Context{"priority": "stored", "owner": "ana"}), domain.Command{
		Event: "START",
		Data:  domain.Context{"priority": "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Context{"priority": "high", "source": "spec", "owner": "ana"}, res.NewContext)
}

func TestExecute_NilActionResultIsEmptyContext(t *testing.T) {
	spec := counterSpec()
	spec.ContextSchema = schema.Schema{}
	spec.States[0].On[0].Action = "wipe"
	spec.Actions = map[string]domain.Action{"wipe": func(domain.Context) domain.Context { return nil }}

	res, err := newExecutor().Execute(spec, entity("idle", domain.Context{"count": 1}), domain.Command{Event: "START"})
	require.NoError(t, err)
	assert.NotNil(t, res.NewContext)
	assert.Empty(t, res.NewContext)
}

func TestEvaluate(t *testing.T) {
	var trace []string
	spec := lifecycleSpec(&trace)
	exec := newExecutor()

	verdict, err := exec.Evaluate(spec, entity("active", domain.Context{"count": 0}), domain.Command{Event: "FINISH"})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, "done", verdict.Target)
	assert.Empty(t, trace, "a dry run never runs actions")

	verdict, err = exec.Evaluate(spec, entity("done", nil), domain.Command{Event: "FINISH"})
	require.Error(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, domain.KindTransitionNotAllowed, verdict.Kind)
	assert.Contains(t, verdict.Reason, "FINISH")
}
