package report

// Plan is the evaluation order of a set of notebooks.
type Plan struct {
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is one cell in evaluation order.
type Step struct {
	Position int     `json:"position" yaml:"position"`
	Depth    int     `json:"depth" yaml:"depth"`
	Cell     string  `json:"cell" yaml:"cell"`
	Kind     string  `json:"kind" yaml:"kind"`
	Inputs   []Input `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Source   string  `json:"source,omitempty" yaml:"source,omitempty"`
}

// Input is one resolved input of a step.
type Input struct {
	Name string `json:"name" yaml:"name"`
	// From is the label of the defining cell, empty for external roots.
	From string `json:"from,omitempty" yaml:"from,omitempty"`
	Root bool   `json:"root,omitempty" yaml:"root,omitempty"`
}
