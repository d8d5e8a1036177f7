package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/policy"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.PolicyProvider = (*policy.Rules)(nil)

const doc = `
default: deny
rules:
  - actors: [admin]
    effect: allow
  - types: [order]
    events: [APPROVE]
    effect: deny
    reason: approvals need an admin
  - types: ["order*"]
    effect: allow
advice:
  - types: [order]
    events: [PAY]
    max_attempts: 5
    backoff: 250ms
  - types: [order]
    max_attempts: 3
    backoff: 2s
    per_minute: 60
`

func TestRules_FirstMatchWins(t *testing.T) {
	p, err := policy.Parse([]byte(doc))
	require.NoError(t, err)
	ctx := context.Background()

	cases := []struct {
		name              string
		actor, typ, event string
		allowed           bool
		reason            string
	}{
		{"admin bypasses deny", "admin", "order", "APPROVE", true, ""},
		{"explicit deny", "bob", "order", "APPROVE", false, "approvals need an admin"},
		{"glob allow", "bob", "order-line", "ADD", true, ""},
		{"default deny", "bob", "ticket", "CLOSE", false, "no matching rule"},
		{"anonymous", "", "order", "SUBMIT", true, ""},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.CanExecute(ctx, tt.actor, tt.typ, tt.event)
			assert.Equal(t, tt.allowed, ok)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			var pe *domain.PolicyError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.reason, pe.Reason)
			assert.Equal(t, domain.KindPolicy, domain.KindOf(err))
		})
	}
}

func TestRules_Advice(t *testing.T) {
	p, err := policy.Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, domain.RetryAdvice{MaxAttempts: 5, Backoff: 250 * time.Millisecond}, p.Advice("order", "PAY"))
	assert.Equal(t, domain.RetryAdvice{MaxAttempts: 3, Backoff: 2 * time.Second, PerMinute: 60}, p.Advice("order", "SUBMIT"))
	assert.Zero(t, p.Advice("ticket", "CLOSE"))
}

func TestRules_Options(t *testing.T) {
	p, err := policy.New(
		policy.WithRule(policy.Rule{Events: []string{"DELETE"}, Effect: policy.Deny}),
		policy.WithAdvice(policy.AdviceRule{RetryAdvice: domain.RetryAdvice{MaxAttempts: 2}}),
	)
	require.NoError(t, err)

	ok, err := p.CanExecute(context.Background(), "x", "any", "UPDATE")
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, _ = p.CanExecute(context.Background(), "x", "any", "DELETE")
	assert.False(t, ok)
	assert.Equal(t, 2, p.Advice("any", "thing").MaxAttempts)

	strict, err := policy.New(policy.WithDefaultDeny())
	require.NoError(t, err)
	ok, _ = strict.CanExecute(context.Background(), "x", "any", "UPDATE")
	assert.False(t, ok)

	ok, err = policy.AllowAll().CanExecute(context.Background(), "", "any", "UPDATE")
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestRules_Invalid(t *testing.T) {
	_, err := policy.Parse([]byte("rules:\n  - effect: maybe\n"))
	assert.ErrorContains(t, err, "unknown effect")

	_, err = policy.Parse([]byte("default: sometimes\n"))
	assert.ErrorContains(t, err, "unknown effect")

	_, err = policy.New(policy.WithRule(policy.Rule{Types: []string{"["}, Effect: policy.Allow}))
	assert.ErrorContains(t, err, "pattern")
}

func TestLoadFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(name, []byte(doc), 0o644))

	p, err := policy.LoadFile(name)
	require.NoError(t, err)
	ok, _ := p.CanExecute(context.Background(), "admin", "ticket", "CLOSE")
	assert.True(t, ok)

	_, err = policy.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
