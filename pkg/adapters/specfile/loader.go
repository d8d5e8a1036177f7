package specfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/espalier/internal/dto"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/schema"
)

// Loader turns YAML documents into Specifications.
// Loaded specifications are not validated; registries validate on Register.
type Loader struct {
	catalog *Catalog
}

// Option configures a Loader.
type Option func(*Loader)

// WithCatalog makes the Go guards and actions of c available to documents.
func WithCatalog(c *Catalog) Option {
	return func(l *Loader) {
		l.catalog = c
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.catalog == nil {
		l.catalog = NewCatalog()
	}
	return l
}

type document struct {
	ID      string         `yaml:"id"`
	Initial string         `yaml:"initial"`
	Context schema.Schema  `yaml:"context"`
	Guards  map[string]any `yaml:"guards"`
	Actions map[string]any `yaml:"actions"`
	States  yaml.Node      `yaml:"states"`
}

// LoadFile reads and parses one document. The id defaults to the file name without extension.
func (l *Loader) LoadFile(path string) (*domain.Specification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read specification: %w", err)
	}
	spec, err := l.parse(data, trimExtension(filepath.Base(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Parse builds a Specification from one YAML document. The document must carry an id.
func (l *Loader) Parse(data []byte) (*domain.Specification, error) {
	return l.parse(data, "")
}

func (l *Loader) parse(data []byte, defaultID string) (*domain.Specification, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse specification: %w", err)
	}
	if doc.ID == "" {
		doc.ID = defaultID
	}
	if doc.ID == "" {
		return nil, &domain.SpecError{Reason: "missing id"}
	}
	fail := func(err error) error {
		return &domain.SpecError{SpecID: doc.ID, Reason: err.Error()}
	}

	states, err := decodeStates(&doc.States)
	if err != nil {
		return nil, fail(err)
	}
	guards, err := newGuardResolver(doc.Guards, l.catalog).all()
	if err != nil {
		return nil, fail(err)
	}
	actions, err := newActionResolver(doc.Actions, l.catalog).all()
	if err != nil {
		return nil, fail(err)
	}

	spec := &domain.Specification{
		ID:            doc.ID,
		ContextSchema: doc.Context,
		InitialState:  doc.Initial,
		States:        states,
		Guards:        guards,
		Actions:       actions,
	}
	if spec.ContextSchema == nil {
		spec.ContextSchema = schema.Schema{}
	}
	if spec.InitialState == "" && len(states) > 0 {
		spec.InitialState = states[0].Name
	}
	return spec, nil
}

// decodeStates walks the states mapping node so that declaration order survives.
func decodeStates(node *yaml.Node) ([]domain.State, error) {
	if node.Kind == 0 {
		return nil, fmt.Errorf("no states declared")
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("states must be a mapping (line %d)", node.Line)
	}

	states := make([]domain.State, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		st, err := decodeState(name, node.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", name, err)
		}
		states = append(states, st)
	}
	return states, nil
}

func decodeState(name string, node *yaml.Node) (domain.State, error) {
	st := domain.State{Name: name}
	if isNull(node) {
		return st, nil
	}
	if node.Kind != yaml.MappingNode {
		return st, fmt.Errorf("expected a mapping (line %d)", node.Line)
	}

	var onNode *yaml.Node
	raw := make(map[string]any)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		if key == "on" {
			onNode = val
			continue
		}
		var v any
		if err := val.Decode(&v); err != nil {
			return st, err
		}
		raw[key] = v
	}

	var def dto.StateDef
	if err := decodeStrict(raw, &def); err != nil {
		return st, err
	}
	st.Entry, st.Exit = def.Entry, def.Exit

	if onNode == nil || isNull(onNode) {
		return st, nil
	}
	if onNode.Kind != yaml.MappingNode {
		return st, fmt.Errorf("on must be a mapping of events (line %d)", onNode.Line)
	}
	for i := 0; i+1 < len(onNode.Content); i += 2 {
		event := onNode.Content[i].Value
		t, err := decodeTransition(event, onNode.Content[i+1])
		if err != nil {
			return st, fmt.Errorf("event %q: %w", event, err)
		}
		st.On = append(st.On, t)
	}
	return st, nil
}

func decodeTransition(event string, node *yaml.Node) (domain.Transition, error) {
	t := domain.Transition{Event: event}
	if node.Kind == yaml.ScalarNode && !isNull(node) {
		t.Target = node.Value
		return t, nil
	}
	if node.Kind != yaml.MappingNode {
		return t, fmt.Errorf("expected a target name or a mapping (line %d)", node.Line)
	}

	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return t, err
	}
	var def dto.TransitionDef
	if err := decodeStrict(raw, &def); err != nil {
		return t, err
	}
	if def.Target == "" {
		return t, fmt.Errorf("missing target (line %d)", node.Line)
	}
	t.Target, t.Guard, t.Action = def.Target, def.Guard, def.Action
	if len(def.Data) > 0 {
		t.StaticData = domain.Context(def.Data)
	}
	return t, nil
}

// decodeStrict decodes a YAML mapping into a DTO, rejecting unknown keys.
func decodeStrict(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

func trimExtension(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
