package bytecode

import (
	"fmt"
	"math"
)

// DoubleInitMessage is the TypeError message raised when a class's field
// installer runs against an instance that already holds its fields.
const DoubleInitMessage = "Cannot initialize private field twice."

// MethodInfo binds a method name to its compiled function.
type MethodInfo struct {
	Name     string `cbor:"1,keyasint"`
	Function uint16 `cbor:"2,keyasint"`
}

// ClassInfo describes a class declared inside some function. OpMakeClass
// refers to it by index; the class object created at run time closes over
// the environment current at that point.
type ClassInfo struct {
	Name        string       `cbor:"1,keyasint"`
	Constructor uint16       `cbor:"2,keyasint"`
	Initializer uint16       `cbor:"3,keyasint"`
	Methods     []MethodInfo `cbor:"4,keyasint,omitempty"`

	// Fields lists private field descriptions in declaration order and
	// FieldSlots the environment slot holding each field's tag.
	Fields     []string `cbor:"5,keyasint,omitempty"`
	FieldSlots []uint32 `cbor:"6,keyasint,omitempty"`
}

// Program is a complete compilation result: every function, constructor
// and method chunk plus class descriptors. Programs are immutable and may be
// shared by several VMs.
type Program struct {
	Version   uint16       `cbor:"1,keyasint"`
	Name      string       `cbor:"2,keyasint"`
	Main      uint16       `cbor:"3,keyasint"`
	Functions []*Chunk     `cbor:"4,keyasint"`
	Classes   []*ClassInfo `cbor:"5,keyasint,omitempty"`
}

// NewProgram creates an empty program.
func NewProgram(name string) *Program {
	return &Program{Version: BytecodeVersion, Name: name}
}

// AddFunction appends a chunk and returns its index.
func (p *Program) AddFunction(c *Chunk) uint16 {
	p.Functions = append(p.Functions, c)
	return uint16(len(p.Functions) - 1)
}

// AddClass appends a class descriptor and returns its index.
func (p *Program) AddClass(ci *ClassInfo) uint16 {
	p.Classes = append(p.Classes, ci)
	return uint16(len(p.Classes) - 1)
}

// Function returns the chunk at index i.
func (p *Program) Function(i uint16) (*Chunk, error) {
	if int(i) >= len(p.Functions) {
		return nil, fmt.Errorf("bytecode: function index %d out of range (%d functions)", i, len(p.Functions))
	}
	return p.Functions[i], nil
}

// Class returns the class descriptor at index i.
func (p *Program) Class(i uint16) (*ClassInfo, error) {
	if int(i) >= len(p.Classes) {
		return nil, fmt.Errorf("bytecode: class index %d out of range (%d classes)", i, len(p.Classes))
	}
	return p.Classes[i], nil
}

// MainFunction returns the entry chunk.
func (p *Program) MainFunction() (*Chunk, error) {
	return p.Function(p.Main)
}

// Validate checks structural consistency: every instruction decodes, every
// cross reference is in range, and every cache id and environment operand
// uses the encoding its value requires. Images are validated on load, so a
// malformed image is rejected here rather than at run time.
func (p *Program) Validate() error {
	if p.Version > BytecodeVersion {
		return fmt.Errorf("bytecode version %d is newer than supported version %d", p.Version, BytecodeVersion)
	}
	if len(p.Functions) > math.MaxUint16+1 {
		return fmt.Errorf("%d functions exceed the u16 function index", len(p.Functions))
	}
	if len(p.Classes) > math.MaxUint16+1 {
		return fmt.Errorf("%d classes exceed the u16 class index", len(p.Classes))
	}
	for fi, c := range p.Functions {
		if c == nil {
			return fmt.Errorf("function %d is missing", fi)
		}
	}
	if _, err := p.MainFunction(); err != nil {
		return err
	}
	for ci, cls := range p.Classes {
		if cls == nil {
			return fmt.Errorf("class %d is missing", ci)
		}
		if _, err := p.Function(cls.Constructor); err != nil {
			return fmt.Errorf("class %d (%s): %w", ci, cls.Name, err)
		}
		if _, err := p.Function(cls.Initializer); err != nil {
			return fmt.Errorf("class %d (%s): %w", ci, cls.Name, err)
		}
		for _, m := range cls.Methods {
			if _, err := p.Function(m.Function); err != nil {
				return fmt.Errorf("class %d (%s) method %s: %w", ci, cls.Name, m.Name, err)
			}
		}
		if len(cls.Fields) != len(cls.FieldSlots) {
			return fmt.Errorf("class %d (%s): %d fields but %d slots", ci, cls.Name, len(cls.Fields), len(cls.FieldSlots))
		}
	}
	for fi, c := range p.Functions {
		if err := p.validateChunk(c); err != nil {
			return fmt.Errorf("function %d (%s): %w", fi, c.Name, err)
		}
	}
	return nil
}

func (p *Program) validateChunk(c *Chunk) error {
	instrs, err := c.Instructions()
	if err != nil {
		return err
	}

	// An environment-creating chunk stores every slot it allocates, so its
	// CREATE_ENV size is bounded by the stores that follow it.
	var create *Instruction
	maxStore := int64(-1)
	for i, in := range instrs {
		switch in.Op {
		case OpConst, OpConstL, OpCreatePrivateName, OpCreatePrivateNameL, OpThrowTypeError, OpCallMethod:
			if int(in.Operand(0)) >= len(c.Constants) {
				return fmt.Errorf("%04X %s: constant %d out of range", in.Offset, in.Op, in.Operand(0))
			}
			if (in.Op == OpConstL || in.Op == OpCreatePrivateNameL) && in.Operand(0) <= math.MaxUint16 {
				return fmt.Errorf("%04X %s: constant %d fits the u16 form", in.Offset, in.Op, in.Operand(0))
			}
		case OpMakeClass:
			if int(in.Operand(0)) >= len(p.Classes) {
				return fmt.Errorf("%04X %s: class %d out of range", in.Offset, in.Op, in.Operand(0))
			}
		case OpMakeClosure:
			if int(in.Operand(0)) >= len(p.Functions) {
				return fmt.Errorf("%04X %s: function %d out of range", in.Offset, in.Op, in.Operand(0))
			}
		case OpCreateEnv:
			if create != nil {
				return fmt.Errorf("%04X %s: environment already created at %04X", in.Offset, in.Op, create.Offset)
			}
			create = &instrs[i]
		case OpStoreEnv, OpStoreEnvL:
			if create == nil {
				break
			}
			if idx := in.Operand(0); idx >= create.Operand(0) {
				return fmt.Errorf("%04X %s: slot %d outside environment of %d", in.Offset, in.Op, idx, create.Operand(0))
			} else if idx > maxStore {
				maxStore = idx
			}
		case OpLoadEnv, OpLoadEnvL:
			if create != nil && in.Operand(0) >= create.Operand(0) {
				return fmt.Errorf("%04X %s: slot %d outside environment of %d", in.Offset, in.Op, in.Operand(0), create.Operand(0))
			}
		case OpLoadOuterEnv, OpLoadOuterEnvL, OpStoreOuterEnv, OpStoreOuterEnvL:
			if in.Operand(0) == 0 {
				return fmt.Errorf("%04X %s: depth 0 must use the frame form", in.Offset, in.Op)
			}
		case OpLoadLocal, OpStoreLocal:
			if int(in.Operand(0)) >= int(c.LocalCount) {
				return fmt.Errorf("%04X %s: local %d out of range (%d locals)", in.Offset, in.Op, in.Operand(0), c.LocalCount)
			}
		case OpJump, OpJumpTrue, OpJumpFalse, OpJumpL, OpJumpTrueL, OpJumpFalseL:
			if t := in.JumpTarget(); t < 0 || t > len(c.Code) {
				return fmt.Errorf("%04X %s: target %04X outside code", in.Offset, in.Op, t)
			}
			if d := in.Operand(0); in.Op.IsLongJump() && d >= math.MinInt16 && d <= math.MaxInt16 {
				return fmt.Errorf("%04X %s: offset %d fits the short form", in.Offset, in.Op, d)
			}
		}
		if in.Op.IsExtended() && EnvIndexEncoding(in.EnvIndex()) != EncodingExtended {
			return fmt.Errorf("%04X %s: index %d fits the compact form", in.Offset, in.Op, in.EnvIndex())
		}
	}
	if create != nil && create.Operand(0) > maxStore+1 {
		return fmt.Errorf("%04X %s: size %d but only slots below %d are stored", create.Offset, create.Op, create.Operand(0), maxStore+1)
	}
	return nil
}
