package vm

import (
	"fmt"
	"strings"
)

// Instance is an object created by a class constructor. Its private fields
// live in hidden storage addressed through its shape, keyed by tag
// identity; the textual field name plays no part in lookup.
type Instance struct {
	class  *Class
	shape  *Shape
	fields []Value
}

// NewInstance returns a bare instance with no fields.
func NewInstance(class *Class, root *Shape) *Instance {
	return &Instance{class: class, shape: root}
}

// Class returns the class that allocated the instance.
func (o *Instance) Class() *Class {
	return o.class
}

// Shape returns the current layout.
func (o *Instance) Shape() *Shape {
	return o.shape
}

// FieldCount returns the number of installed private fields.
func (o *Instance) FieldCount() int {
	return len(o.fields)
}

// HasField reports whether tag has been installed.
func (o *Instance) HasField(tag *PrivateName) bool {
	_, ok := o.shape.Lookup(tag)
	return ok
}

// Get returns the value stored under tag.
func (o *Instance) Get(tag *PrivateName) (Value, bool) {
	off, ok := o.shape.Lookup(tag)
	if !ok {
		return Undefined, false
	}
	return o.fields[off], true
}

// Put overwrites an existing field. It reports false if tag is absent.
func (o *Instance) Put(tag *PrivateName, v Value) bool {
	off, ok := o.shape.Lookup(tag)
	if !ok {
		return false
	}
	o.fields[off] = v
	return true
}

// install appends a new field. Callers must have checked that tag is
// absent; next is the shape after the transition.
func (o *Instance) install(next *Shape, v Value) int {
	off := len(o.fields)
	o.fields = append(o.fields, v)
	o.shape = next
	return off
}

func (o *Instance) String() string {
	name := "Object"
	if o.class != nil {
		name = o.class.Name()
	}
	if len(o.fields) == 0 {
		return fmt.Sprintf("%s {}", name)
	}
	parts := make([]string, len(o.fields))
	for i, k := range o.shape.keys() {
		parts[i] = fmt.Sprintf("%s: %s", k.Description(), o.fields[i])
	}
	return fmt.Sprintf("%s { %s }", name, strings.Join(parts, ", "))
}
