package stage

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknown is returned when a stage name is not in the allow-list.
var ErrUnknown = errors.New("unknown stage")

// PipelineStage is the fixed stage the scheduling loop invokes: one full
// pass over every pipeline step.
const PipelineStage = "pipeline"

// Stage names one external unit of pipeline work. Command and Args describe
// how to invoke it; Fatal marks steps whose failure aborts a full pipeline
// run. Stages are immutable once registered.
type Stage struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Fatal   bool     `yaml:"fatal"`
}

// Registry is the closed allow-list of runnable stages. Anything not in it
// is rejected before a process is spawned.
type Registry struct {
	order  []string
	stages map[string]Stage
}

// Defaults returns the built-in registry: the full pipeline plus its four
// steps, all invoked through the worker binary.
func Defaults(workerBin string) *Registry {
	r := &Registry{stages: make(map[string]Stage)}
	for _, s := range []Stage{
		{Name: PipelineStage, Command: workerBin, Args: []string{"run", "pipeline"}, Fatal: true},
		{Name: "script", Command: workerBin, Args: []string{"run", "script"}, Fatal: true},
		{Name: "image", Command: workerBin, Args: []string{"run", "image"}, Fatal: true},
		{Name: "compose", Command: workerBin, Args: []string{"run", "compose"}, Fatal: false},
		{Name: "publish", Command: workerBin, Args: []string{"run", "publish"}, Fatal: false},
	} {
		r.add(s)
	}
	return r
}

// Load reads stage definitions from a YAML file. The file fully replaces the
// defaults.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage file: %w", err)
	}
	var defs []Stage
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse stage file: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("stage file %s defines no stages", path)
	}
	r := &Registry{stages: make(map[string]Stage)}
	for _, s := range defs {
		if s.Name == "" || s.Command == "" {
			return nil, fmt.Errorf("stage file %s: every stage needs a name and a command", path)
		}
		r.add(s)
	}
	return r, nil
}

func (r *Registry) add(s Stage) {
	if _, ok := r.stages[s.Name]; !ok {
		r.order = append(r.order, s.Name)
	}
	r.stages[s.Name] = s
}

// Lookup returns the named stage or ErrUnknown.
func (r *Registry) Lookup(name string) (Stage, error) {
	s, ok := r.stages[name]
	if !ok {
		return Stage{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return s, nil
}

// Names lists the allow-list in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
