package vm

import (
	"fmt"

	"github.com/chazu/classvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Closure: a compiled function bound to an environment
// ---------------------------------------------------------------------------

// Closure pairs a chunk with the environment it was created in. Methods and
// constructors also carry their home class.
type Closure struct {
	chunk *bytecode.Chunk
	env   *Environment
	home  *Class
}

// Chunk returns the compiled code.
func (c *Closure) Chunk() *bytecode.Chunk {
	return c.chunk
}

// Env returns the captured environment.
func (c *Closure) Env() *Environment {
	return c.env
}

// ---------------------------------------------------------------------------
// Class: one evaluation of a class declaration
// ---------------------------------------------------------------------------

// Class is created by OpMakeClass each time the enclosing function runs.
// Every evaluation closes over that activation's environment, so two
// evaluations of one declaration read different private name tags.
type Class struct {
	info        *bytecode.ClassInfo
	env         *Environment
	constructor *Closure
	initializer *Closure
	methods     map[string]*Closure
}

func newClass(p *bytecode.Program, info *bytecode.ClassInfo, env *Environment) (*Class, error) {
	c := &Class{info: info, env: env, methods: make(map[string]*Closure, len(info.Methods))}

	bind := func(index uint16) (*Closure, error) {
		chunk, err := p.Function(index)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", info.Name, err)
		}
		return &Closure{chunk: chunk, env: env, home: c}, nil
	}

	var err error
	if c.constructor, err = bind(info.Constructor); err != nil {
		return nil, err
	}
	if c.initializer, err = bind(info.Initializer); err != nil {
		return nil, err
	}
	for _, m := range info.Methods {
		cl, err := bind(m.Function)
		if err != nil {
			return nil, err
		}
		c.methods[m.Name] = cl
	}
	return c, nil
}

// Name returns the declared class name.
func (c *Class) Name() string {
	return c.info.Name
}

// Info returns the compiled class descriptor.
func (c *Class) Info() *bytecode.ClassInfo {
	return c.info
}

// Env returns the environment the class closed over.
func (c *Class) Env() *Environment {
	return c.env
}

// Method returns the named method.
func (c *Class) Method(name string) (*Closure, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// FieldTag returns the private name tag this class uses for the named
// field, e.g. "#count".
func (c *Class) FieldTag(name string) (*PrivateName, error) {
	for i, f := range c.info.Fields {
		if f != name {
			continue
		}
		v, err := c.env.Get(c.info.FieldSlots[i])
		if err != nil {
			return nil, err
		}
		tag, ok := v.AsPrivateName()
		if !ok {
			return nil, fmt.Errorf("class %s: slot %d does not hold a private name", c.info.Name, c.info.FieldSlots[i])
		}
		return tag, nil
	}
	return nil, fmt.Errorf("class %s has no field %s", c.info.Name, name)
}
