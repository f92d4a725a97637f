package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind identifies the dynamic type of a Value.
type ValueKind uint8

const (
	KindUndefined ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindClass
	KindPrivateName
	KindFunction
)

func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindClass:
		return "class"
	case KindPrivateName:
		return "private name"
	case KindFunction:
		return "function"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is a dynamically typed runtime value. The zero Value is undefined.
//
// Heap references (instances, classes, functions, private names) are held as Go
// pointers in ref so the garbage collector sees them.
type Value struct {
	kind ValueKind
	num  float64
	str  string
	ref  any
}

// Undefined is the undefined value.
var Undefined = Value{}

// Pre-defined booleans.
var (
	True  = Value{kind: KindBool, num: 1}
	False = Value{kind: KindBool}
)

// Number returns a number value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromInstance wraps an instance.
func FromInstance(inst *Instance) Value {
	return Value{kind: KindObject, ref: inst}
}

// FromClass wraps a class object.
func FromClass(c *Class) Value {
	return Value{kind: KindClass, ref: c}
}

// FromPrivateName wraps a private name tag.
func FromPrivateName(p *PrivateName) Value {
	return Value{kind: KindPrivateName, ref: p}
}

// FromClosure wraps a function closure.
func FromClosure(c *Closure) Value {
	return Value{kind: KindFunction, ref: c}
}

// Kind returns the dynamic type.
func (v Value) Kind() ValueKind { return v.kind }

// IsUndefined returns true if v is undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNumber returns true if v is a number.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsString returns true if v is a string.
func (v Value) IsString() bool { return v.kind == KindString }

// AsNumber returns the numeric payload. Non-numbers return NaN.
func (v Value) AsNumber() float64 {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.num
	default:
		return math.NaN()
	}
}

// AsString returns the string payload, or "" if v is not a string.
func (v Value) AsString() string {
	if v.kind == KindString {
		return v.str
	}
	return ""
}

// AsBool returns the boolean payload, or false if v is not a boolean.
func (v Value) AsBool() bool {
	return v.kind == KindBool && v.num != 0
}

// AsInstance returns the instance held by v.
func (v Value) AsInstance() (*Instance, bool) {
	inst, ok := v.ref.(*Instance)
	return inst, ok && v.kind == KindObject
}

// AsClass returns the class held by v.
func (v Value) AsClass() (*Class, bool) {
	c, ok := v.ref.(*Class)
	return c, ok && v.kind == KindClass
}

// AsClosure returns the function closure held by v.
func (v Value) AsClosure() (*Closure, bool) {
	c, ok := v.ref.(*Closure)
	return c, ok && v.kind == KindFunction
}

// AsPrivateName returns the private name held by v.
func (v Value) AsPrivateName() (*PrivateName, bool) {
	p, ok := v.ref.(*PrivateName)
	return p, ok && v.kind == KindPrivateName
}

// Truthy implements the language's truthiness rule.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindUndefined:
		return false
	case KindBool:
		return v.num != 0
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

// StrictEquals compares by type and value; references compare by identity.
func (v Value) StrictEquals(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined:
		return true
	case KindBool, KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	default:
		return v.ref == o.ref
	}
}

// String renders the value for printing.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	case KindObject:
		if inst, ok := v.AsInstance(); ok {
			return inst.String()
		}
	case KindClass:
		if c, ok := v.AsClass(); ok {
			return fmt.Sprintf("[class %s]", c.Name())
		}
	case KindPrivateName:
		if p, ok := v.AsPrivateName(); ok {
			return p.String()
		}
	case KindFunction:
		if c, ok := v.AsClosure(); ok {
			return fmt.Sprintf("[function %s]", c.chunk.Name)
		}
	}
	return "<invalid>"
}
