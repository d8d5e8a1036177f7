package dto

// TransitionDef is the long form of a transition in a specification file.
// It uses "mapstructure" tags to match the YAML keys.
type TransitionDef struct {
	Target string         `json:"target" mapstructure:"target"`
	Guard  string         `json:"guard" mapstructure:"guard"`
	Action string         `json:"action" mapstructure:"action"`
	Data   map[string]any `json:"data" mapstructure:"data"`
}

// StateDef holds the scalar keys of a state. Its "on" mapping is walked
// separately to keep the declaration order.
type StateDef struct {
	Entry string `json:"entry" mapstructure:"entry"`
	Exit  string `json:"exit" mapstructure:"exit"`
}

// GuardDef is a declarative guard.
// Exactly one of Field, All, Any, Not or Ref is expected.
type GuardDef struct {
	Field string `json:"field" mapstructure:"field"`
	Op    string `json:"op" mapstructure:"op"`
	Value any    `json:"value" mapstructure:"value"`

	All []GuardDef `json:"all" mapstructure:"all"`
	Any []GuardDef `json:"any" mapstructure:"any"`
	Not *GuardDef  `json:"not" mapstructure:"not"`

	// Ref names a guard of the Go function catalog.
	Ref string `json:"ref" mapstructure:"ref"`
}

// ActionDef is a declarative action. Its steps apply in the order
// ref, set, increment, unset.
type ActionDef struct {
	Ref       string         `json:"ref" mapstructure:"ref"`
	Set       map[string]any `json:"set" mapstructure:"set"`
	Increment map[string]any `json:"increment" mapstructure:"increment"`
	Unset     []string       `json:"unset" mapstructure:"unset"`
}
