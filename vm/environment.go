package vm

import "fmt"

// Environment is a fixed-size slot record created once per activation of a
// scope that declares closure-visible bindings. Closures created during the
// activation share it.
type Environment struct {
	slots  []Value
	parent *Environment
}

// NewEnvironment creates an environment with size undefined slots.
func NewEnvironment(size uint32, parent *Environment) *Environment {
	return &Environment{slots: make([]Value, size), parent: parent}
}

// Len returns the number of slots.
func (e *Environment) Len() int {
	return len(e.slots)
}

// Ancestor returns the environment depth levels out; depth 0 is e itself.
func (e *Environment) Ancestor(depth int) (*Environment, error) {
	env := e
	for i := 0; i < depth && env != nil; i++ {
		env = env.parent
	}
	if env == nil {
		return nil, fmt.Errorf("no environment at depth %d", depth)
	}
	return env, nil
}

// Get returns slot i.
func (e *Environment) Get(i uint32) (Value, error) {
	if int64(i) >= int64(len(e.slots)) {
		return Undefined, fmt.Errorf("environment slot %d out of range (size %d)", i, len(e.slots))
	}
	return e.slots[i], nil
}

// Set stores v in slot i.
func (e *Environment) Set(i uint32, v Value) error {
	if int64(i) >= int64(len(e.slots)) {
		return fmt.Errorf("environment slot %d out of range (size %d)", i, len(e.slots))
	}
	e.slots[i] = v
	return nil
}
