// Package report renders run results and evaluation plans.
package report

import (
	"encoding/json"
	"io"

	"github.com/specialistvlad/cellgrid/internal/ctyconv"
	"gopkg.in/yaml.v3"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Entry is the outcome of one cell.
type Entry struct {
	Cell   string `json:"cell" yaml:"cell"`
	Module string `json:"module" yaml:"module"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Status string `json:"status" yaml:"status"`
	Value  any    `json:"-" yaml:"value,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
	// RootCause marks cells that failed on their own.
	RootCause bool `json:"root_cause,omitempty" yaml:"root_cause,omitempty"`
}

// MarshalJSON encodes the value through cty so numbers keep their exact form.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	out := struct {
		plain
		Value json.RawMessage `json:"value,omitempty"`
	}{plain: plain(e)}
	if e.Value != nil {
		b, err := ctyconv.MarshalJSON(e.Value)
		if err != nil {
			b, _ = json.Marshal(ctyconv.Format(e.Value))
		}
		out.Value = b
	}
	return json.Marshal(out)
}

// Run is the result of evaluating a set of notebooks.
type Run struct {
	Session string  `json:"session" yaml:"session"`
	Entries []Entry `json:"cells" yaml:"cells"`
}

// Counts returns how many cells ended in each status.
func (r *Run) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Entries {
		counts[e.Status]++
	}
	return counts
}

// Failures returns the entries that failed on their own.
func (r *Run) Failures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.RootCause {
			out = append(out, e)
		}
	}
	return out
}

// WriteRun renders r to w.
func WriteRun(w io.Writer, format Format, r *Run) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatYAML:
		return writeYAML(w, yamlRun(r))
	default:
		return writeRunText(w, r)
	}
}

// WritePlan renders p to w.
func WritePlan(w io.Writer, format Format, p *Plan) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, p)
	case FormatYAML:
		return writeYAML(w, p)
	default:
		return writePlanText(w, p)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// yamlRun replaces values yaml cannot encode with their printed form.
func yamlRun(r *Run) *Run {
	out := &Run{Session: r.Session, Entries: make([]Entry, len(r.Entries))}
	for i, e := range r.Entries {
		if e.Value != nil {
			if _, err := ctyconv.FromNative(e.Value); err != nil {
				e.Value = ctyconv.Format(e.Value)
			}
		}
		out.Entries[i] = e
	}
	return out
}
