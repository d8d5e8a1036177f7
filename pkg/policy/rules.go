package policy

import (
	"context"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/espalier/pkg/domain"
)

// Effects a rule can carry.
const (
	Allow = "allow"
	Deny  = "deny"
)

// Rule grants or denies a set of actors the right to send events to entity types.
type Rule struct {
	Actors []string `yaml:"actors,omitempty"`
	Types  []string `yaml:"types,omitempty"`
	Events []string `yaml:"events,omitempty"`
	Effect string   `yaml:"effect"`
	Reason string   `yaml:"reason,omitempty"`
}

// AdviceRule publishes retry advice for matching (type, event) pairs.
type AdviceRule struct {
	Types  []string `yaml:"types,omitempty"`
	Events []string `yaml:"events,omitempty"`

	domain.RetryAdvice `yaml:",inline"`
}

// Document is the YAML shape of a policy file.
type Document struct {
	Default string       `yaml:"default"`
	Rules   []Rule       `yaml:"rules"`
	Advice  []AdviceRule `yaml:"advice"`
}

// Rules is an ordered, immutable rule set. It is safe for concurrent use.
type Rules struct {
	rules        []Rule
	advice       []AdviceRule
	defaultAllow bool
}

// Option configures Rules.
type Option func(*Rules)

// WithRule appends a rule.
func WithRule(r Rule) Option {
	return func(p *Rules) {
		p.rules = append(p.rules, r)
	}
}

// WithAdvice appends an advice rule.
func WithAdvice(a AdviceRule) Option {
	return func(p *Rules) {
		p.advice = append(p.advice, a)
	}
}

// WithDefaultDeny denies commands no rule matches. The default is to allow them.
func WithDefaultDeny() Option {
	return func(p *Rules) {
		p.defaultAllow = false
	}
}

// New creates a rule set that allows everything unless configured otherwise.
func New(opts ...Option) (*Rules, error) {
	p := &Rules{defaultAllow: true}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

// AllowAll returns a rule set without rules.
func AllowAll() *Rules {
	return &Rules{defaultAllow: true}
}

// Parse builds a rule set from a YAML document.
func Parse(data []byte) (*Rules, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	p := &Rules{rules: doc.Rules, advice: doc.Advice}
	switch doc.Default {
	case "", Allow:
		p.defaultAllow = true
	case Deny:
	default:
		return nil, fmt.Errorf("policy default: unknown effect %q", doc.Default)
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile reads a YAML policy file.
func LoadFile(name string) (*Rules, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

func (p *Rules) check() error {
	for i, r := range p.rules {
		if r.Effect != Allow && r.Effect != Deny {
			return fmt.Errorf("rule %d: unknown effect %q", i, r.Effect)
		}
		for _, list := range [][]string{r.Actors, r.Types, r.Events} {
			if err := checkPatterns(list); err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
		}
	}
	for i, a := range p.advice {
		for _, list := range [][]string{a.Types, a.Events} {
			if err := checkPatterns(list); err != nil {
				return fmt.Errorf("advice %d: %w", i, err)
			}
		}
	}
	return nil
}

// CanExecute implements ports.PolicyProvider.
// A denial is returned as (false, *domain.PolicyError).
func (p *Rules) CanExecute(_ context.Context, actor, entityType, event string) (bool, error) {
	for _, r := range p.rules {
		if !matchAny(r.Actors, actor) || !matchAny(r.Types, entityType) || !matchAny(r.Events, event) {
			continue
		}
		if r.Effect == Allow {
			return true, nil
		}
		return false, &domain.PolicyError{Actor: actor, EntityType: entityType, Event: event, Reason: r.Reason}
	}
	if p.defaultAllow {
		return true, nil
	}
	return false, &domain.PolicyError{Actor: actor, EntityType: entityType, Event: event, Reason: "no matching rule"}
}

// Advice implements ports.PolicyProvider. It returns the first matching advice, or none.
func (p *Rules) Advice(entityType, event string) domain.RetryAdvice {
	for _, a := range p.advice {
		if matchAny(a.Types, entityType) && matchAny(a.Events, event) {
			return a.RetryAdvice
		}
	}
	return domain.RetryAdvice{}
}

func matchAny(patterns []string, value string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, value); ok {
			return true
		}
	}
	return false
}

func checkPatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}
