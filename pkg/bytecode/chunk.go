package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// ChunkFlags contains compilation flags for a chunk.
type ChunkFlags uint16

const (
	// ChunkFlagDebug indicates debug information is present.
	ChunkFlagDebug ChunkFlags = 1 << 0

	// ChunkFlagCreatesEnv indicates the function creates its own environment.
	ChunkFlagCreatesEnv ChunkFlags = 1 << 1

	// ChunkFlagConstructor marks a class constructor.
	ChunkFlagConstructor ChunkFlags = 1 << 2

	// ChunkFlagInitializer marks a standalone field initializer.
	ChunkFlagInitializer ChunkFlags = 1 << 3

	// ChunkFlagCacheSaturated indicates more access sites than cache ids.
	ChunkFlagCacheSaturated ChunkFlags = 1 << 4
)

// ConstantKind identifies the type of a constant pool entry.
type ConstantKind uint8

const (
	ConstNumber ConstantKind = 1
	ConstString ConstantKind = 2
)

// Constant is a single constant pool entry.
type Constant struct {
	Kind   ConstantKind `cbor:"1,keyasint"`
	Number float64      `cbor:"2,keyasint,omitempty"`
	String string       `cbor:"3,keyasint,omitempty"`
}

// NumberConstant returns a number constant.
func NumberConstant(n float64) Constant {
	return Constant{Kind: ConstNumber, Number: n}
}

// StringConstant returns a string constant.
func StringConstant(s string) Constant {
	return Constant{Kind: ConstString, String: s}
}

// Display formats the constant for listings.
func (k Constant) Display() string {
	switch k.Kind {
	case ConstNumber:
		return fmt.Sprintf("%g", k.Number)
	case ConstString:
		return fmt.Sprintf("%q", k.String)
	default:
		return fmt.Sprintf("<const kind %d>", k.Kind)
	}
}

// Chunk represents compiled bytecode for one function, constructor or method.
// A Chunk is immutable once compilation finishes; runtime state such as
// inline cache contents is kept by the executing VM, not here.
type Chunk struct {
	// Header
	Version uint16     `cbor:"1,keyasint"`
	Flags   ChunkFlags `cbor:"2,keyasint"`
	Name    string     `cbor:"3,keyasint"`

	// Code section
	Code []byte `cbor:"4,keyasint"`

	// Constant pool - numbers and strings referenced by OpConst and friends
	Constants []Constant `cbor:"5,keyasint"`

	// Parameter information. For constructors and methods local 0 holds the
	// receiver and parameters start at local 1.
	ParamCount uint8    `cbor:"6,keyasint"`
	ParamNames []string `cbor:"7,keyasint,omitempty"`

	// Local variables (including receiver and parameters)
	LocalCount uint8 `cbor:"8,keyasint"`

	// CacheSites is the number of access sites that requested a cache id.
	CacheSites int `cbor:"9,keyasint"`

	// Debug information (optional, present if ChunkFlagDebug is set)
	VarNames []string `cbor:"11,keyasint,omitempty"`

	cacheIDs   CacheIDAllocator
	constIndex map[Constant]uint32
}

// NewChunk creates a new empty chunk with the current version.
func NewChunk() *Chunk {
	return &Chunk{
		Version:   BytecodeVersion,
		Code:      make([]byte, 0, 64),
		Constants: make([]Constant, 0, 8),
	}
}

// NewNamedChunk creates a new empty chunk carrying a function name.
func NewNamedChunk(name string) *Chunk {
	c := NewChunk()
	c.Name = name
	return c
}

// AddConstant adds a constant to the pool and returns its index.
// If the constant already exists, returns the existing index.
func (c *Chunk) AddConstant(value Constant) uint32 {
	if len(c.constIndex) != len(c.Constants) {
		c.constIndex = make(map[Constant]uint32, len(c.Constants))
		for i, k := range c.Constants {
			if _, ok := c.constIndex[k]; !ok {
				c.constIndex[k] = uint32(i)
			}
		}
	}
	if idx, ok := c.constIndex[value]; ok {
		return idx
	}
	idx := uint32(len(c.Constants))
	c.Constants = append(c.Constants, value)
	c.constIndex[value] = idx
	return idx
}

// AddString adds a string constant and returns its index.
func (c *Chunk) AddString(s string) uint32 {
	return c.AddConstant(StringConstant(s))
}

// GetConstant returns the constant at the given index.
// Panics if the index is out of bounds.
func (c *Chunk) GetConstant(index uint32) Constant {
	return c.Constants[index]
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitU8 emits an opcode with a single one-byte operand.
func (c *Chunk) EmitU8(op Opcode, operand uint8) int {
	return c.EmitWithOperand(op, operand)
}

// EmitU16 emits an opcode with a single big-endian u16 operand.
func (c *Chunk) EmitU16(op Opcode, operand uint16) int {
	return c.EmitWithOperand(op, byte(operand>>8), byte(operand))
}

// EmitU32 emits an opcode with a single big-endian u32 operand.
func (c *Chunk) EmitU32(op Opcode, operand uint32) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = binary.BigEndian.AppendUint32(c.Code, operand)
	return offset
}

// EmitConstant emits an OpConst instruction for the given value, or OpConstL
// once the pool has outgrown a u16 index.
// Adds the constant to the pool if not already present.
func (c *Chunk) EmitConstant(value Constant) int {
	idx := c.AddConstant(value)
	if idx <= math.MaxUint16 {
		return c.EmitU16(OpConst, uint16(idx))
	}
	return c.EmitU32(OpConstL, idx)
}

// EmitCreatePrivateName emits creation of a fresh private name tag with the
// given description.
func (c *Chunk) EmitCreatePrivateName(desc string) int {
	idx := c.AddString(desc)
	if idx <= math.MaxUint16 {
		return c.EmitU16(OpCreatePrivateName, uint16(idx))
	}
	return c.EmitU32(OpCreatePrivateNameL, idx)
}

// EmitThrowTypeError emits a TypeError raise with the given message.
func (c *Chunk) EmitThrowTypeError(msg string) int {
	return c.EmitU32(OpThrowTypeError, c.AddString(msg))
}

// SelectJump picks the short or long form of a jump for the given offset,
// measured from the end of the jump instruction, and encodes the operand.
func SelectJump(op Opcode, delta int) (Opcode, []byte, error) {
	short, long := op, op
	switch op {
	case OpJump, OpJumpL:
		short, long = OpJump, OpJumpL
	case OpJumpTrue, OpJumpTrueL:
		short, long = OpJumpTrue, OpJumpTrueL
	case OpJumpFalse, OpJumpFalseL:
		short, long = OpJumpFalse, OpJumpFalseL
	default:
		return op, nil, fmt.Errorf("bytecode: %s is not a jump", op)
	}
	if delta >= math.MinInt16 && delta <= math.MaxInt16 {
		return short, binary.BigEndian.AppendUint16(nil, uint16(int16(delta))), nil
	}
	if delta >= math.MinInt32 && delta <= math.MaxInt32 {
		return long, binary.BigEndian.AppendUint32(nil, uint32(int32(delta))), nil
	}
	return op, nil, fmt.Errorf("bytecode: jump of %d bytes exceeds the 32-bit offset", delta)
}

// InsertJump inserts a forward jump at offset at whose target is the
// instruction currently at target (or the end of code). Code from at onward
// moves down by the length of the jump; relative jumps inside the moved
// code stay valid. It returns the length of the inserted instruction.
func (c *Chunk) InsertJump(at int, op Opcode, target int) (int, error) {
	if at < 0 || target < at || target > len(c.Code) {
		return 0, fmt.Errorf("bytecode: bad forward jump %04X -> %04X", at, target)
	}
	op, operand, err := SelectJump(op, target-at)
	if err != nil {
		return 0, err
	}
	n := 1 + len(operand)
	c.Code = append(c.Code, make([]byte, n)...)
	copy(c.Code[at+n:], c.Code[at:len(c.Code)-n])
	c.Code[at] = byte(op)
	copy(c.Code[at+1:], operand)
	return n, nil
}

// AllocCacheID assigns the next inline cache id for an access site in this
// chunk. Ids saturate at MaxCacheID.
func (c *Chunk) AllocCacheID() uint8 {
	id := c.cacheIDs.Next()
	c.CacheSites = c.cacheIDs.Allocated()
	if c.cacheIDs.Saturated() {
		c.Flags |= ChunkFlagCacheSaturated
	}
	return id
}

// CacheSlotCount returns how many distinct cache cells the chunk needs at
// run time.
func (c *Chunk) CacheSlotCount() int {
	if c.CacheSites > CacheIDCapacity {
		return CacheIDCapacity
	}
	return c.CacheSites
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}
