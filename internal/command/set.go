package command

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Set is a validated collection of commands: names are pairwise distinct,
// output paths are globally distinct, every dependency name and
// dependent_files path resolves to a producer in the set, and the
// dependency relation is a DAG.
type Set struct {
	commands map[string]*Command
	order    []string
	// outputProducer maps a declared output path (resolved string form) to
	// the name of the command that produces it.
	outputProducer map[string]string
}

// ParseSet parses a YAML command-set document (§6) and validates it per §3.
func ParseSet(data []byte) (*Set, error) {
	var raw []Command
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse command set YAML: %w", err)
	}
	return NewSet(raw)
}

// NewSet validates an already-decoded command list and builds a Set.
func NewSet(commands []Command) (*Set, error) {
	s := &Set{
		commands:       make(map[string]*Command, len(commands)),
		order:          make([]string, 0, len(commands)),
		outputProducer: make(map[string]string),
	}

	for i := range commands {
		c := commands[i]
		if c.Name == "" {
			return nil, fmt.Errorf("command at index %d has an empty name", i)
		}
		if !c.TargetType.Valid() {
			return nil, fmt.Errorf("command %q: invalid target_type %q", c.Name, c.TargetType)
		}
		if _, dup := s.commands[c.Name]; dup {
			return nil, fmt.Errorf("duplicate command name %q", c.Name)
		}
		s.commands[c.Name] = &c
		s.order = append(s.order, c.Name)

		for _, out := range c.Outputs {
			key := out.String()
			if owner, dup := s.outputProducer[key]; dup {
				return nil, fmt.Errorf("output %q declared by both %q and %q", key, owner, c.Name)
			}
			s.outputProducer[key] = c.Name
		}
	}

	if err := s.validateReferences(); err != nil {
		return nil, err
	}
	if err := s.checkCycles(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) validateReferences() error {
	for _, name := range s.order {
		c := s.commands[name]
		for _, dep := range c.Dependencies {
			depName := dep.Name()
			if _, ok := s.commands[depName]; !ok {
				return fmt.Errorf("command %q: missing command dependency %q", name, depName)
			}
		}
		for _, df := range c.DependentFiles {
			key := df.String()
			if _, ok := s.outputProducer[key]; !ok {
				return fmt.Errorf("command %q: dependent_files entry %q is not produced by any command's outputs", name, key)
			}
		}
	}
	return nil
}

// AllDeps returns the full dependency list (explicit name deps plus the
// implicit producers of dependent_files) for a command, in the order
// dependencies then dependent_files producers. Used by internal/graph to
// build each command's wait set.
func (s *Set) AllDeps(c *Command) []string {
	return s.allDeps(c)
}

// allDeps returns the full dependency list (explicit name deps plus the
// implicit producers of dependent_files) for a command.
func (s *Set) allDeps(c *Command) []string {
	deps := make([]string, 0, len(c.Dependencies)+len(c.DependentFiles))
	for _, dep := range c.Dependencies {
		deps = append(deps, dep.Name())
	}
	for _, df := range c.DependentFiles {
		deps = append(deps, s.outputProducer[df.String()])
	}
	return deps
}

// checkCycles runs a DFS over a three-state (unvisited/visiting/done) map
// shared by the whole walk; only the path slice used in the error message is
// copied per branch. Grounded on the re-entrancy guard in
// other_examples/6ffc31b5_invowk-invowk__cmd-invowk-cmd_execute_deps.go.go.
func (s *Set) checkCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(s.order))

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle detected: %v -> %s", stack, name)
		}
		state[name] = visiting
		newStack := append(append([]string(nil), stack...), name)
		for _, dep := range s.allDeps(s.commands[name]) {
			if err := visit(dep, newStack); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range s.order {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// Names returns command names in declaration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns the command with the given name.
func (s *Set) Get(name string) (*Command, bool) {
	c, ok := s.commands[name]
	return c, ok
}

// ProducerOf returns the name of the command that declares path as an
// output, if any.
func (s *Set) ProducerOf(path string) (string, bool) {
	name, ok := s.outputProducer[path]
	return name, ok
}

// ByTargetType returns every command name whose TargetType equals t, in
// declaration order.
func (s *Set) ByTargetType(t TargetType) []string {
	var out []string
	for _, name := range s.order {
		if s.commands[name].TargetType == t {
			out = append(out, name)
		}
	}
	return out
}

// Len returns the number of commands in the set.
func (s *Set) Len() int { return len(s.order) }
