package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName(c.Name)
}

// DisassembleWithName returns a human-readable bytecode listing with a name header.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; ClassVM Bytecode v%d\n", c.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", c.Flags))
	if c.Flags&ChunkFlagDebug != 0 {
		sb.WriteString(" [DEBUG]")
	}
	if c.Flags&ChunkFlagCreatesEnv != 0 {
		sb.WriteString(" [ENV]")
	}
	if c.Flags&ChunkFlagConstructor != 0 {
		sb.WriteString(" [CONSTRUCTOR]")
	}
	if c.Flags&ChunkFlagInitializer != 0 {
		sb.WriteString(" [INITIALIZER]")
	}
	if c.Flags&ChunkFlagCacheSaturated != 0 {
		sb.WriteString(" [CACHE_SATURATED]")
	}
	sb.WriteString("\n")

	if c.ParamCount > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): %s\n", c.ParamCount, strings.Join(c.ParamNames, ", ")))
	}
	if c.LocalCount > 0 {
		sb.WriteString(fmt.Sprintf("; Locals: %d slots\n", c.LocalCount))
	}
	if c.CacheSites > 0 {
		sb.WriteString(fmt.Sprintf("; Cache sites: %d (%d cells)\n", c.CacheSites, c.CacheSlotCount()))
	}
	sb.WriteString("\n")

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, k := range c.Constants {
			display := k.Display()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)
		if instrLen == 0 {
			break
		}
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		offset += instrLen
	}

	return sb.String()
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	in, err := Decode(c.Code, offset)
	if err != nil {
		if offset < len(c.Code) {
			return fmt.Sprintf("<%v>", err), 1
		}
		return "<end of code>", 0
	}
	name := in.Op.String()

	switch in.Op {
	case OpConst, OpConstL:
		return fmt.Sprintf("%s %d ; %s", name, in.Operand(0), c.constantDisplay(in.Operand(0))), in.Len()

	case OpCreatePrivateName, OpCreatePrivateNameL, OpThrowTypeError:
		return fmt.Sprintf("%s %s", name, c.constantDisplay(in.Operand(0))), in.Len()

	case OpLoadLocal, OpStoreLocal:
		if v := c.getVarName(int(in.Operand(0))); v != "" {
			return fmt.Sprintf("%s %d ; %s", name, in.Operand(0), v), in.Len()
		}
		return fmt.Sprintf("%s %d", name, in.Operand(0)), in.Len()

	case OpInstallField, OpGetField, OpPutField:
		return fmt.Sprintf("%s cache=%d", name, in.Operand(0)), in.Len()

	case OpLoadOuterEnv, OpLoadOuterEnvL, OpStoreOuterEnv, OpStoreOuterEnvL:
		return fmt.Sprintf("%s depth=%d %d", name, in.Operand(0), in.Operand(1)), in.Len()

	case OpJump, OpJumpTrue, OpJumpFalse, OpJumpL, OpJumpTrueL, OpJumpFalseL:
		return fmt.Sprintf("%s %+d (-> %04X)", name, in.Operand(0), in.JumpTarget()), in.Len()

	case OpCallMethod:
		return fmt.Sprintf("%s %s argc=%d", name, c.constantDisplay(in.Operand(0)), in.Operand(1)), in.Len()

	case OpNew, OpCall:
		return fmt.Sprintf("%s argc=%d", name, in.Operand(0)), in.Len()
	}

	if len(in.Operands) == 0 {
		return name, in.Len()
	}
	operands := make([]string, len(in.Operands))
	for i, v := range in.Operands {
		operands[i] = fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("%s %s", name, strings.Join(operands, ", ")), in.Len()
}

func (c *Chunk) constantDisplay(idx int64) string {
	if idx < 0 || int(idx) >= len(c.Constants) {
		return fmt.Sprintf("<const %d>", idx)
	}
	return c.Constants[idx].Display()
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (c *Chunk) DisassembleInstruction(offset int) string {
	line, _ := c.disassembleInstruction(offset)
	return line
}

// getVarName returns the variable name for a local slot if available.
func (c *Chunk) getVarName(slot int) string {
	if slot < len(c.VarNames) {
		return c.VarNames[slot]
	}
	return ""
}

// DisassembleToLines returns the disassembly as a slice of lines, without
// offsets. Handy for comparing listings in tests.
func (c *Chunk) DisassembleToLines() []string {
	var lines []string
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)
		if instrLen == 0 {
			break
		}
		lines = append(lines, line)
		offset += instrLen
	}
	return lines
}

// InstructionCount returns the number of instructions in the chunk.
// Note: This iterates through all code, so it's O(n).
func (c *Chunk) InstructionCount() int {
	count := 0
	offset := 0
	for offset < len(c.Code) {
		in, err := Decode(c.Code, offset)
		if err != nil {
			break
		}
		offset += in.Len()
		count++
	}
	return count
}

// Disassemble returns listings for every function of the program.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; Program %s: %d functions, %d classes\n", p.Name, len(p.Functions), len(p.Classes)))
	for i, cls := range p.Classes {
		sb.WriteString(fmt.Sprintf("; class %d %s ctor=%d init=%d fields=%d\n", i, cls.Name, cls.Constructor, cls.Initializer, len(cls.Fields)))
		for _, m := range cls.Methods {
			sb.WriteString(fmt.Sprintf(";   method %s -> %d\n", m.Name, m.Function))
		}
	}
	for i, c := range p.Functions {
		sb.WriteString("\n")
		sb.WriteString(c.DisassembleWithName(fmt.Sprintf("%d: %s", i, c.Name)))
	}
	return sb.String()
}
