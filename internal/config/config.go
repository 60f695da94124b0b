package config

// Document represents the top-level structure of a strand policy YAML file.
type Document struct {
	Name          string `yaml:"name"`
	SchemaVersion string `yaml:"schemaVersion"`

	// Modules declares the module instances callable from policy.
	Modules []ModuleConfig `yaml:"modules,omitempty"`
	// Processors declares the map-processor instances usable by map nodes.
	Processors []ProcessorConfig `yaml:"processors,omitempty"`
	// Policies are named, reusable statement lists referenced by `policy:`.
	Policies map[string][]Statement `yaml:"policies,omitempty"`
	// Sections are the entry points, keyed by method name ("authorize",
	// "accounting", ...).
	Sections map[string][]Statement `yaml:"sections"`

	// FilePath stores the source file path for logging and error context.
	// It is not parsed from the YAML.
	FilePath string `yaml:"-"`
}

// ModuleConfig instantiates one module under an instance name. Type selects
// the registered factory; the same type may be configured multiple times
// under different names.
type ModuleConfig struct {
	Name   string                 `yaml:"name"`
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config,omitempty"`
}

// ProcessorConfig instantiates one map processor.
type ProcessorConfig struct {
	Name   string                 `yaml:"name"`
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config,omitempty"`
}

// Statement is one policy line. Exactly one directive field may be set;
// validation rejects statements with zero or several.
type Statement struct {
	// Call invokes the named module instance. Method defaults to the
	// enclosing section name. Actions overrides entries of the default
	// action table, keyed by result code name.
	Call    string            `yaml:"call,omitempty"`
	Method  string            `yaml:"method,omitempty"`
	Actions map[string]string `yaml:"actions,omitempty"`

	// If/Elsif evaluate a condition and run Then when it holds. Else runs
	// when the preceding if/elsif chain did not.
	If    string      `yaml:"if,omitempty"`
	Elsif string      `yaml:"elsif,omitempty"`
	Then  []Statement `yaml:"then,omitempty"`
	Else  []Statement `yaml:"else,omitempty"`

	// Grouping constructs.
	Group                []Statement       `yaml:"group,omitempty"`
	Policy               string            `yaml:"policy,omitempty"`
	Redundant            []Statement       `yaml:"redundant,omitempty"`
	LoadBalance          *LoadBalanceSpec  `yaml:"load_balance,omitempty"`
	RedundantLoadBalance *LoadBalanceSpec  `yaml:"redundant_load_balance,omitempty"`
	Parallel             []Statement       `yaml:"parallel,omitempty"`
	Switch               *SwitchSpec       `yaml:"switch,omitempty"`
	Foreach              *ForeachSpec      `yaml:"foreach,omitempty"`

	// Leaf constructs.
	Update []UpdateLine `yaml:"update,omitempty"`
	Map    *MapSpec     `yaml:"map,omitempty"`
	Expand string       `yaml:"expand,omitempty"`
	Break  bool         `yaml:"break,omitempty"`
	Return bool         `yaml:"return,omitempty"`
}

// LoadBalanceSpec configures a load-balance or redundant-load-balance group.
// Each child statement is one candidate. Key is a template hashed to pick
// the starting child; when empty, selection is random.
type LoadBalanceSpec struct {
	Key      string      `yaml:"key,omitempty"`
	Children []Statement `yaml:"children"`
}

// SwitchSpec configures a switch node: the key template and its case arms.
type SwitchSpec struct {
	Key   string     `yaml:"key"`
	Cases []CaseSpec `yaml:"cases"`
}

// CaseSpec is one arm of a switch. Default arms match when no literal did.
type CaseSpec struct {
	Match   string      `yaml:"match,omitempty"`
	Default bool        `yaml:"default,omitempty"`
	Do      []Statement `yaml:"do"`
}

// ForeachSpec iterates the body once per pair named Attr in List, binding
// the loop variable in the control list.
type ForeachSpec struct {
	List string      `yaml:"list"`
	Attr string      `yaml:"attr"`
	Do   []Statement `yaml:"do"`
}

// UpdateLine is one edit of an update node. Value strings are expanded as
// templates per request; other value types are applied verbatim.
type UpdateLine struct {
	List  string      `yaml:"list"`
	Attr  string      `yaml:"attr"`
	Op    string      `yaml:"op,omitempty"`
	Value interface{} `yaml:"value,omitempty"`
}

// MapSpec configures a map node: expand Input, hand it to the named
// processor, apply the assignments it returns.
type MapSpec struct {
	Processor string `yaml:"processor"`
	Input     string `yaml:"input"`
}
