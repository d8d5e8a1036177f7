package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/internal/testutils"
	"github.com/aretw0/espalier/pkg/domain"
)

const ticketSpec = `
id: ticket
initial: open
context:
  reason: string?
states:
  open:
    on:
      CLOSE: closed
  closed: {}
`

// run executes the root command once. Flag values stick between runs, so
// every call passes the flags it depends on.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	specs := testutils.SetupSpecDir(t, map[string]string{"ticket.yaml": ticketSpec})
	global := []string{"--specs", specs, "--dir", t.TempDir(), "--store", "file", "--log-level", "error"}
	with := func(args ...string) []string {
		return append(append([]string{}, args...), global...)
	}

	t.Run("version", func(t *testing.T) {
		out, err := run(t, with("version")...)
		require.NoError(t, err)
		assert.Contains(t, out, "espalier version")
	})

	t.Run("validate", func(t *testing.T) {
		out, err := run(t, with("validate")...)
		require.NoError(t, err)
		assert.Contains(t, out, "ticket (2 states)")

		bad := filepath.Join(testutils.SetupSpecDir(t, map[string]string{"bad.yaml": "initial: nowhere\nstates:\n  open: {}\n"}), "bad.yaml")
		out, err = run(t, with("validate", bad)...)
		assert.EqualError(t, err, "validation failed")
		assert.Contains(t, out, "❌")
	})

	t.Run("exec", func(t *testing.T) {
		out, err := run(t, with("exec", "ticket", "T-1", "CLOSE", "--json", "--data", `{"reason":"done"}`, "--actor", "alice")...)
		require.NoError(t, err)

		var res domain.TransitionResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "open", res.From)
		assert.Equal(t, "closed", res.To)
		assert.Equal(t, "done", res.NewContext["reason"])

		_, err = run(t, with("exec", "ticket", "T-1", "CLOSE", "--json", "--data", "")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), domain.KindTransitionNotAllowed)

		_, err = run(t, with("exec", "ticket", "T-1", "CLOSE", "--data", "{not json")...)
		assert.ErrorContains(t, err, "invalid --data")
	})

	t.Run("inspect", func(t *testing.T) {
		out, err := run(t, with("inspect", "ticket", "T-1", "--json")...)
		require.NoError(t, err)

		var state domain.EntityState
		require.NoError(t, json.Unmarshal([]byte(out), &state))
		assert.Equal(t, "closed", state.StateName)
		assert.Equal(t, int64(1), state.Version)

		_, err = run(t, with("inspect", "ticket", "missing", "--json")...)
		assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	})

	t.Run("ls", func(t *testing.T) {
		out, err := run(t, with("ls", "ticket", "--json", "--state", "closed")...)
		require.NoError(t, err)

		var states []domain.EntityState
		require.NoError(t, json.Unmarshal([]byte(out), &states))
		require.Len(t, states, 1)
		assert.Equal(t, "T-1", states[0].ID)
	})

	t.Run("history", func(t *testing.T) {
		out, err := run(t, with("history", "ticket", "T-1", "--json")...)
		require.NoError(t, err)

		var entries []domain.AuditEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "CLOSE", entries[0].Event)
		assert.Equal(t, "alice", entries[0].Actor)
	})

	t.Run("can", func(t *testing.T) {
		out, err := run(t, with("can", "ticket", "T-2", "CLOSE", "--json", "--data", "")...)
		require.NoError(t, err)
		var verdict domain.Verdict
		require.NoError(t, json.Unmarshal([]byte(out), &verdict))
		assert.True(t, verdict.Allowed)
		assert.Equal(t, "closed", verdict.Target)

		out, err = run(t, with("can", "ticket", "T-1", "CLOSE", "--json", "--data", "")...)
		require.NoError(t, err)
		verdict = domain.Verdict{}
		require.NoError(t, json.Unmarshal([]byte(out), &verdict))
		assert.False(t, verdict.Allowed)
		assert.Equal(t, domain.KindTransitionNotAllowed, verdict.Kind)
	})

	t.Run("graph", func(t *testing.T) {
		out, err := run(t, with("graph", "ticket", "--entity", "T-1")...)
		require.NoError(t, err)
		assert.Contains(t, out, "graph TD")
		assert.Contains(t, out, `open -- "CLOSE" --> closed`)
		assert.Contains(t, out, "class open visited;")
		assert.Contains(t, out, "class closed current;")

		_, err = run(t, with("graph", "invoice", "--entity", "")...)
		assert.ErrorAs(t, err, new(*domain.SpecNotFoundError))
	})

	t.Run("unknown store", func(t *testing.T) {
		_, err := run(t, "version", "--store", "tape")
		assert.ErrorContains(t, err, "unknown store")
	})
}

func TestDefaultBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8081", defaultBaseURL(":8081"))
	assert.Equal(t, "http://0.0.0.0:8081", defaultBaseURL("0.0.0.0:8081"))
}
