package specfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/adapters/specfile"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports/tests"
	"github.com/aretw0/espalier/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string, opts ...specfile.Option) *domain.Specification {
	t.Helper()
	spec, err := specfile.NewLoader(opts...).Parse([]byte(src))
	require.NoError(t, err)
	return spec
}

func TestLoader_PreservesDeclarationOrder(t *testing.T) {
	spec := parse(t, `
id: flow
states:
  zeta:
    on:
      Z: alpha
      A: mid
      M: zeta
  alpha:
  mid: {}
`)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, spec.StateNames())
	assert.Equal(t, "zeta", spec.InitialState, "first state is the default initial state")

	zeta, ok := spec.State("zeta")
	require.True(t, ok)
	assert.Equal(t, []string{"Z", "A", "M"}, zeta.Events())
	assert.NotNil(t, spec.ContextSchema)
}

func TestLoader_TransitionForms(t *testing.T) {
	spec := parse(t, `
id: order
initial: draft
guards:
  always: {field: x, op: absent}
actions:
  noop: {unset: [tmp]}
states:
  draft:
    exit: noop
    on:
      CANCEL: cancelled
      SUBMIT:
        target: submitted
        guard: always
        action: noop
        data: {channel: web}
  submitted:
    entry: noop
  cancelled:
`)
	draft, _ := spec.State("draft")
	assert.Equal(t, "noop", draft.Exit)

	cancel, ok := draft.Transition("CANCEL")
	require.True(t, ok)
	assert.Equal(t, domain.Transition{Event: "CANCEL", Target: "cancelled"}, cancel)

	submit, _ := draft.Transition("SUBMIT")
	assert.Equal(t, "submitted", submit.Target)
	assert.Equal(t, "always", submit.Guard)
	assert.Equal(t, "noop", submit.Action)
	assert.Equal(t, domain.Context{"channel": "web"}, submit.StaticData)

	submitted, _ := spec.State("submitted")
	assert.Equal(t, "noop", submitted.Entry)
}

func TestLoader_Guards(t *testing.T) {
	spec := parse(t, `
id: g
guards:
  eq: {field: status, op: eq, value: ok}
  ne: {field: status, op: ne, value: ok}
  gt: {field: n, op: gt, value: 2}
  gte: {field: n, op: gte, value: 2}
  lt: {field: n, op: lt, value: 2.5}
  lte: {field: n, op: lte, value: 2}
  exists: {field: status, op: exists}
  absent: {field: status, op: absent}
  before: {field: code, op: lt, value: m}
  both:
    all:
      - {ref: gte}
      - {field: status, op: exists}
  either:
    any:
      - {field: n, op: eq, value: 100}
      - {ref: eq}
  neither:
    not: {ref: either}
  alias: eq
states:
  s:
`)
	cases := []struct {
		guard string
		ctx   domain.Context
		want  bool
	}{
		{"eq", domain.Context{"status": "ok"}, true},
		{"eq", domain.Context{"status": "ko"}, false},
		{"ne", domain.Context{"status": "ko"}, true},
		{"gt", domain.Context{"n": 3}, true},
		{"gt", domain.Context{"n": 2}, false},
		{"gt", domain.Context{"n": "3"}, false},
		{"gt", domain.Context{}, false},
		{"gte", domain.Context{"n": 2.0}, true},
		{"lt", domain.Context{"n": int64(2)}, true},
		{"lte", domain.Context{"n": 3}, false},
		{"exists", domain.Context{"status": "x"}, true},
		{"exists", domain.Context{"status": nil}, false},
		{"absent", domain.Context{}, true},
		{"before", domain.Context{"code": "a"}, true},
		{"before", domain.Context{"code": "z"}, false},
		{"both", domain.Context{"n": 5, "status": "x"}, true},
		{"both", domain.Context{"n": 5}, false},
		{"either", domain.Context{"n": 100}, true},
		{"either", domain.Context{"status": "ok"}, true},
		{"either", domain.Context{"n": 1}, false},
		{"neither", domain.Context{"n": 1}, true},
		{"alias", domain.Context{"status": "ok"}, true},
	}
	for _, tt := range cases {
		t.Run(tt.guard, func(t *testing.T) {
			g, ok := spec.Guard(tt.guard)
			require.True(t, ok)
			assert.Equal(t, tt.want, g(tt.ctx), "%v", tt.ctx)
		})
	}
}

func TestLoader_Actions(t *testing.T) {
	catalog := specfile.NewCatalog().
		Action("double", func(c domain.Context) domain.Context {
			c["n"] = c["n"].(int) * 2
			return c
		})

	spec := parse(t, `
id: a
actions:
  bump: {increment: {n: 1, total: 0.5}}
  label: {set: {tags: [a, b]}, unset: [tmp]}
  twice: [bump, double, {set: {done: true}}]
  wrapped: {ref: double, increment: {n: 1}}
states:
  s:
`, specfile.WithCatalog(catalog))

	bump, _ := spec.Action("bump")
	out := bump(domain.Context{"n": 1})
	assert.Equal(t, 2, out["n"])
	assert.Equal(t, 0.5, out["total"], "missing fields start from zero")

	label, _ := spec.Action("label")
	out = label(domain.Context{"tmp": 1})
	assert.NotContains(t, out, "tmp")
	assert.Equal(t, []any{"a", "b"}, out["tags"])
	out["tags"].([]any)[0] = "mutated"
	again := label(domain.Context{})
	assert.Equal(t, []any{"a", "b"}, again["tags"], "set values are copied per call")

	twice, _ := spec.Action("twice")
	out = twice(domain.Context{"n": 2})
	assert.Equal(t, domain.Context{"n": 6, "total": 0.5, "done": true}, out)

	wrapped, _ := spec.Action("wrapped")
	assert.Equal(t, 7, wrapped(domain.Context{"n": 3})["n"])

	_, ok := spec.Action("double")
	assert.True(t, ok, "catalog actions are exposed to transitions")
}

func TestLoader_Errors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"missing id", "states: {s: {}}", "missing id"},
		{"no states", "id: x", "no states declared"},
		{"unknown key", "id: x\nstates:\n  s:\n    on:\n      GO: {taget: s}", "taget"},
		{"missing target", "id: x\nstates:\n  s:\n    on:\n      GO: {guard: g}", "missing target"},
		{"unknown ref", "id: x\nguards:\n  g: {ref: nope}\nstates: {s: {}}", "nope"},
		{"cycle", "id: x\nguards:\n  a: {ref: b}\n  b: {ref: a}\nstates: {s: {}}", "reference cycle"},
		{"bad op", "id: x\nguards:\n  g: {field: n, op: near}\nstates: {s: {}}", "unknown operator"},
		{"bad increment", "id: x\nactions:\n  a: {increment: {n: lots}}\nstates: {s: {}}", "expected a number"},
		{"empty action", "id: x\nactions:\n  a: {}\nstates: {s: {}}", "empty action"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := specfile.NewLoader().Parse([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, domain.KindSpec, domain.KindOf(err))
		})
	}

	_, err := specfile.NewLoader().Parse([]byte("id: [unterminated"))
	assert.Error(t, err)
}

func TestLoader_CatalogGuards(t *testing.T) {
	catalog := specfile.NewCatalog().
		Guard("isVIP", func(c domain.Context) bool { return c["tier"] == "vip" })

	spec := parse(t, `
id: c
states:
  s:
    on:
      UPGRADE: {target: t, guard: isVIP}
  t:
`, specfile.WithCatalog(catalog))

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(spec), "catalog guards satisfy reference integrity")
	assert.Equal(t, []string{"isVIP"}, catalog.GuardNames())
}

func TestLoader_EndToEnd(t *testing.T) {
	spec, err := specfile.NewLoader().LoadFile(filepath.Join("testdata", "specs", "order.yaml"))
	require.NoError(t, err)

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(spec))
	svc := espalier.New(reg, memory.NewStore())
	ctx := context.Background()

	send := func(event string, data domain.Context) (*domain.TransitionResult, error) {
		return svc.Execute(ctx, domain.Command{EntityType: "order", EntityID: "o-1", Event: event, Data: data})
	}

	_, err = send("SUBMIT", domain.Context{"items": 0})
	assert.ErrorAs(t, err, new(*domain.GuardFailedError))

	_, err = send("ADD", domain.Context{"items": 0})
	require.NoError(t, err)

	res, err := send("SUBMIT", nil)
	require.NoError(t, err)
	assert.Equal(t, "submitted", res.To)
	assert.Equal(t, true, res.NewContext["stamped"])
	assert.Equal(t, 1, res.NewContext["items"])
}

func TestSource(t *testing.T) {
	src := specfile.NewSource(filepath.Join("testdata", "specs"))
	tests.SpecSourceContractTest(t, src, map[string]string{
		"order":  "draft",
		"ticket": "open",
	})

	all, err := src.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "order", all[0].ID)
}

func TestSource_Collision(t *testing.T) {
	dir := t.TempDir()
	doc := []byte("id: same\nstates: {s: {}}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), doc, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), doc, 0o644))

	_, err := specfile.NewSource(dir).ListSpecs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id collision")

	_, err = specfile.NewSource(filepath.Join(dir, "missing")).ListSpecs()
	assert.Error(t, err)
}
