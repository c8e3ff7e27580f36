package extraction

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v2"
)

//go:embed tasks.yaml
var defaultTasksYAML []byte

// TaskDescriptor is one prompt template and its generation settings.
type TaskDescriptor struct {
	ID          TaskID   `yaml:"id"`
	Description string   `yaml:"description"`
	JSON        bool     `yaml:"json"`
	Temperature *float32 `yaml:"temperature"`
	Params      []string `yaml:"params"`
	Prompt      string   `yaml:"prompt"`

	tmpl *template.Template
}

type taskFile struct {
	System string           `yaml:"system"`
	Tasks  []TaskDescriptor `yaml:"tasks"`
}

// Registry holds the parsed task descriptors.
type Registry struct {
	system string
	tasks  map[TaskID]*TaskDescriptor
}

// DefaultRegistry parses the embedded task descriptors.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultTasksYAML)
}

// ParseRegistry parses a YAML task file and compiles every prompt.
func ParseRegistry(data []byte) (*Registry, error) {
	var f taskFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing task descriptors: %v", ErrConfiguration, err)
	}

	reg := &Registry{
		system: f.System,
		tasks:  make(map[TaskID]*TaskDescriptor, len(f.Tasks)),
	}
	for i := range f.Tasks {
		td := f.Tasks[i]
		if td.ID == "" {
			return nil, fmt.Errorf("%w: task %d has no id", ErrConfiguration, i)
		}
		if _, dup := reg.tasks[td.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task %s", ErrConfiguration, td.ID)
		}
		tmpl, err := template.New(string(td.ID)).Option("missingkey=error").Parse(td.Prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: task %s: %v", ErrConfiguration, td.ID, err)
		}
		td.tmpl = tmpl
		reg.tasks[td.ID] = &td
	}
	return reg, nil
}

// System returns the shared system instruction.
func (r *Registry) System() string {
	return r.system
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id TaskID) (*TaskDescriptor, bool) {
	td, ok := r.tasks[id]
	return td, ok
}

// Render fills the task's prompt with the request parameters.
func (r *Registry) Render(req Request) (*TaskDescriptor, string, error) {
	td, ok := r.tasks[req.Task]
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown task %q", ErrConfiguration, req.Task)
	}
	for _, p := range td.Params {
		if _, ok := req.Params[p]; !ok {
			return nil, "", fmt.Errorf("%w: task %s requires parameter %q", ErrConfiguration, req.Task, p)
		}
	}

	var buf bytes.Buffer
	if err := td.tmpl.Execute(&buf, req.Params); err != nil {
		return nil, "", fmt.Errorf("%w: rendering task %s: %v", ErrConfiguration, req.Task, err)
	}
	return td, buf.String(), nil
}
