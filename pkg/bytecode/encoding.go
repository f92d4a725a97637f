package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Operand ranges. The compact environment index and the cache id are both
// one byte, but they are sized independently: an environment index past
// MaxCompactEnvIndex switches to the extended opcode, while cache ids never
// leave the one-byte field (they saturate instead, see CacheIDAllocator).
const MaxCompactEnvIndex uint32 = math.MaxUint8

// Encoding is the operand width chosen for an instruction.
type Encoding uint8

const (
	EncodingCompact Encoding = iota
	EncodingExtended
)

func (e Encoding) String() string {
	if e == EncodingExtended {
		return "extended"
	}
	return "compact"
}

// EnvIndexEncoding returns the narrowest encoding able to carry index.
func EnvIndexEncoding(index uint32) Encoding {
	if index <= MaxCompactEnvIndex {
		return EncodingCompact
	}
	return EncodingExtended
}

// SelectEnvOp picks between the compact and extended forms of an
// environment access and encodes the index operand accordingly.
func SelectEnvOp(compact, extended Opcode, index uint32) (Opcode, []byte) {
	if EnvIndexEncoding(index) == EncodingCompact {
		return compact, []byte{byte(index)}
	}
	return extended, binary.BigEndian.AppendUint32(nil, index)
}

// EmitLoadEnv emits a load from the frame environment.
func (c *Chunk) EmitLoadEnv(index uint32) int {
	op, operand := SelectEnvOp(OpLoadEnv, OpLoadEnvL, index)
	return c.EmitWithOperand(op, operand...)
}

// EmitStoreEnv emits a store into the frame environment.
func (c *Chunk) EmitStoreEnv(index uint32) int {
	op, operand := SelectEnvOp(OpStoreEnv, OpStoreEnvL, index)
	return c.EmitWithOperand(op, operand...)
}

// EmitLoadOuterEnv emits a load from the environment depth links above the
// frame environment.
func (c *Chunk) EmitLoadOuterEnv(depth uint8, index uint32) int {
	op, operand := SelectEnvOp(OpLoadOuterEnv, OpLoadOuterEnvL, index)
	return c.EmitWithOperand(op, append([]byte{depth}, operand...)...)
}

// EmitStoreOuterEnv emits a store into the environment depth links above
// the frame environment.
func (c *Chunk) EmitStoreOuterEnv(depth uint8, index uint32) int {
	op, operand := SelectEnvOp(OpStoreOuterEnv, OpStoreOuterEnvL, index)
	return c.EmitWithOperand(op, append([]byte{depth}, operand...)...)
}

// EmitCreateEnv emits environment creation. The size is always a u32.
func (c *Chunk) EmitCreateEnv(size uint32) int {
	c.Flags |= ChunkFlagCreatesEnv
	return c.EmitU32(OpCreateEnv, size)
}

// EmitCacheOp emits a private field operation carrying a cache id.
func (c *Chunk) EmitCacheOp(op Opcode, cacheID uint8) int {
	if !op.UsesCacheID() {
		panic(fmt.Sprintf("bytecode: %s does not take a cache id", op))
	}
	return c.EmitU8(op, cacheID)
}

// Instruction is a decoded instruction.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []int64
}

// Len returns the encoded length of the instruction.
func (in Instruction) Len() int {
	return in.Op.InstructionLen()
}

// Operand returns operand i, or 0 if the instruction has fewer operands.
func (in Instruction) Operand(i int) int64 {
	if i < len(in.Operands) {
		return in.Operands[i]
	}
	return 0
}

// Decode decodes the instruction at offset.
func Decode(code []byte, offset int) (Instruction, error) {
	if offset < 0 || offset >= len(code) {
		return Instruction{}, fmt.Errorf("bytecode: offset %d out of range", offset)
	}
	op := Opcode(code[offset])
	info, ok := opcodeInfoTable[op]
	if !ok {
		return Instruction{}, fmt.Errorf("bytecode: unknown opcode 0x%02X at %04X", byte(op), offset)
	}
	if offset+1+info.OperandLen() > len(code) {
		return Instruction{}, fmt.Errorf("bytecode: truncated %s at %04X", info.Name, offset)
	}

	in := Instruction{Offset: offset, Op: op}
	pos := offset + 1
	for _, k := range info.Operands {
		var v int64
		switch k {
		case OperandU8:
			v = int64(code[pos])
		case OperandU16:
			v = int64(binary.BigEndian.Uint16(code[pos:]))
		case OperandI16:
			v = int64(int16(binary.BigEndian.Uint16(code[pos:])))
		case OperandU32:
			v = int64(binary.BigEndian.Uint32(code[pos:]))
		case OperandI32:
			v = int64(int32(binary.BigEndian.Uint32(code[pos:])))
		}
		in.Operands = append(in.Operands, v)
		pos += k.Width()
	}
	return in, nil
}

// Instructions decodes the whole code section.
func (c *Chunk) Instructions() ([]Instruction, error) {
	var out []Instruction
	offset := 0
	for offset < len(c.Code) {
		in, err := Decode(c.Code, offset)
		if err != nil {
			return out, err
		}
		out = append(out, in)
		offset += in.Len()
	}
	return out, nil
}

// EnvIndex returns the slot index of a decoded environment access.
func (in Instruction) EnvIndex() uint32 {
	if in.Op.IsOuterEnvAccess() {
		return uint32(in.Operand(1))
	}
	return uint32(in.Operand(0))
}

// JumpTarget returns the absolute target of a decoded jump.
func (in Instruction) JumpTarget() int {
	return in.Offset + in.Len() + int(in.Operand(0))
}
