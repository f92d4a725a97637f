package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpPop Opcode = 0x01 // Pop top of stack
	OpDup Opcode = 0x02 // Duplicate top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst          Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpConstUndefined Opcode = 0x11 // Push undefined
	OpConstTrue      Opcode = 0x12 // Push true
	OpConstFalse     Opcode = 0x13 // Push false
	OpConstZero      Opcode = 0x14 // Push 0
	OpConstL         Opcode = 0x15 // Push constant from pool: OpConstL <index:u32>

	// ========================================================================
	// Local variables (0x20-0x2F)
	// ========================================================================

	OpLoadLocal  Opcode = 0x20 // Push local: OpLoadLocal <slot:u8>
	OpStoreLocal Opcode = 0x21 // Pop and store to local: OpStoreLocal <slot:u8>

	// ========================================================================
	// Environment (0x30-0x3F)
	//
	// Each environment operation has a compact form with a u8 index and an
	// extended (L) form with a u32 index. See SelectEnvOp. The outer forms
	// first walk <depth> parent links up from the frame environment.
	// ========================================================================

	OpCreateEnv      Opcode = 0x30 // Create frame environment: OpCreateEnv <size:u32>
	OpLoadEnv        Opcode = 0x31 // Push env slot: OpLoadEnv <index:u8>
	OpLoadEnvL       Opcode = 0x32 // Push env slot: OpLoadEnvL <index:u32>
	OpStoreEnv       Opcode = 0x33 // Pop into env slot: OpStoreEnv <index:u8>
	OpStoreEnvL      Opcode = 0x34 // Pop into env slot: OpStoreEnvL <index:u32>
	OpLoadOuterEnv   Opcode = 0x35 // OpLoadOuterEnv <depth:u8> <index:u8>
	OpLoadOuterEnvL  Opcode = 0x36 // OpLoadOuterEnvL <depth:u8> <index:u32>
	OpStoreOuterEnv  Opcode = 0x37 // OpStoreOuterEnv <depth:u8> <index:u8>
	OpStoreOuterEnvL Opcode = 0x38 // OpStoreOuterEnvL <depth:u8> <index:u32>

	// ========================================================================
	// Private fields (0x40-0x4F)
	// ========================================================================

	OpCreatePrivateName  Opcode = 0x40 // Push fresh tag: OpCreatePrivateName <desc:u16>
	OpFieldExists        Opcode = 0x41 // obj tag -> bool
	OpInstallField       Opcode = 0x42 // obj value tag -> : OpInstallField <cache:u8>
	OpGetField           Opcode = 0x43 // obj tag -> value : OpGetField <cache:u8>
	OpPutField           Opcode = 0x44 // obj value tag -> value : OpPutField <cache:u8>
	OpCreatePrivateNameL Opcode = 0x45 // Push fresh tag: OpCreatePrivateNameL <desc:u32>

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum (or concatenation for strings)
	OpSub Opcode = 0x51 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient
	OpMod Opcode = 0x54 // Pop two, push remainder
	OpNeg Opcode = 0x55 // Negate top of stack

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================

	OpEq  Opcode = 0x60 // Pop two, push a == b
	OpNe  Opcode = 0x61 // Pop two, push a != b
	OpLt  Opcode = 0x62 // Pop two, push a < b
	OpLe  Opcode = 0x63 // Pop two, push a <= b
	OpGt  Opcode = 0x64 // Pop two, push a > b
	OpGe  Opcode = 0x65 // Pop two, push a >= b
	OpNot Opcode = 0x68 // Logical NOT

	// ========================================================================
	// Control flow (0x80-0x8F)
	//
	// Each jump has a short form with an i16 offset and a long (L) form with
	// an i32 offset. See SelectJump.
	// ========================================================================

	OpJump       Opcode = 0x80 // Unconditional jump: OpJump <offset:i16>
	OpJumpTrue   Opcode = 0x81 // Pop, jump if truthy: OpJumpTrue <offset:i16>
	OpJumpFalse  Opcode = 0x82 // Pop, jump if falsy: OpJumpFalse <offset:i16>
	OpJumpL      Opcode = 0x83 // Unconditional jump: OpJumpL <offset:i32>
	OpJumpTrueL  Opcode = 0x84 // Pop, jump if truthy: OpJumpTrueL <offset:i32>
	OpJumpFalseL Opcode = 0x85 // Pop, jump if falsy: OpJumpFalseL <offset:i32>

	// ========================================================================
	// Classes, instances and functions (0x90-0x9F)
	// ========================================================================

	OpMakeClass   Opcode = 0x90 // Push class object: OpMakeClass <class:u16>
	OpNewInstance Opcode = 0x91 // Push bare instance of the home class
	OpNew         Opcode = 0x92 // Construct: class args... -> instance: OpNew <argc:u8>
	OpCallMethod  Opcode = 0x93 // recv args... -> result: OpCallMethod <name:u16> <argc:u8>
	OpMakeClosure Opcode = 0x94 // Push function closed over the frame env: OpMakeClosure <fn:u16>
	OpCall        Opcode = 0x95 // fn args... -> result: OpCall <argc:u8>

	// ========================================================================
	// Errors (0xE0-0xEF)
	// ========================================================================

	OpThrowTypeError Opcode = 0xE0 // Raise TypeError: OpThrowTypeError <message:u32>

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn          Opcode = 0xF0 // Return top of stack
	OpReturnUndefined Opcode = 0xF1 // Return undefined
)

// OperandKind describes the width and signedness of one instruction operand.
type OperandKind uint8

const (
	OperandU8 OperandKind = iota + 1
	OperandU16
	OperandU32
	OperandI16
	OperandI32
)

// Width returns the encoded size of the operand in bytes.
func (k OperandKind) Width() int {
	switch k {
	case OperandU8:
		return 1
	case OperandU16, OperandI16:
		return 2
	case OperandU32, OperandI32:
		return 4
	default:
		return 0
	}
}

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string        // Human-readable name
	StackPop  int           // How many values popped from stack (-1 = variable)
	StackPush int           // How many values pushed to stack
	Operands  []OperandKind // Operand layout following the opcode byte
}

// OperandLen returns the number of operand bytes described by the layout.
func (i OpcodeInfo) OperandLen() int {
	n := 0
	for _, k := range i.Operands {
		n += k.Width()
	}
	return n
}

var (
	noOperands = []OperandKind(nil)
	u8         = []OperandKind{OperandU8}
	u16        = []OperandKind{OperandU16}
	u32        = []OperandKind{OperandU32}
	i16        = []OperandKind{OperandI16}
	i32        = []OperandKind{OperandI32}
	u16u8      = []OperandKind{OperandU16, OperandU8}
	u8u8       = []OperandKind{OperandU8, OperandU8}
	u8u32      = []OperandKind{OperandU8, OperandU32}
)

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpPop: {"POP", 1, 0, noOperands},
	OpDup: {"DUP", 1, 2, noOperands},

	// Constants
	OpConst:          {"CONST", 0, 1, u16},
	OpConstUndefined: {"CONST_UNDEFINED", 0, 1, noOperands},
	OpConstTrue:      {"CONST_TRUE", 0, 1, noOperands},
	OpConstFalse:     {"CONST_FALSE", 0, 1, noOperands},
	OpConstZero:      {"CONST_ZERO", 0, 1, noOperands},
	OpConstL:         {"CONST_L", 0, 1, u32},

	// Locals
	OpLoadLocal:  {"LOAD_LOCAL", 0, 1, u8},
	OpStoreLocal: {"STORE_LOCAL", 1, 0, u8},

	// Environment
	OpCreateEnv:      {"CREATE_ENV", 0, 0, u32},
	OpLoadEnv:        {"LOAD_ENV", 0, 1, u8},
	OpLoadEnvL:       {"LOAD_ENV_L", 0, 1, u32},
	OpStoreEnv:       {"STORE_ENV", 1, 0, u8},
	OpStoreEnvL:      {"STORE_ENV_L", 1, 0, u32},
	OpLoadOuterEnv:   {"LOAD_OUTER_ENV", 0, 1, u8u8},
	OpLoadOuterEnvL:  {"LOAD_OUTER_ENV_L", 0, 1, u8u32},
	OpStoreOuterEnv:  {"STORE_OUTER_ENV", 1, 0, u8u8},
	OpStoreOuterEnvL: {"STORE_OUTER_ENV_L", 1, 0, u8u32},

	// Private fields
	OpCreatePrivateName:  {"CREATE_PRIVATE_NAME", 0, 1, u16},
	OpCreatePrivateNameL: {"CREATE_PRIVATE_NAME_L", 0, 1, u32},
	OpFieldExists:        {"FIELD_EXISTS", 2, 1, noOperands},
	OpInstallField:       {"INSTALL_FIELD", 3, 0, u8},
	OpGetField:           {"GET_FIELD", 2, 1, u8},
	OpPutField:           {"PUT_FIELD", 3, 1, u8},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, noOperands},
	OpSub: {"SUB", 2, 1, noOperands},
	OpMul: {"MUL", 2, 1, noOperands},
	OpDiv: {"DIV", 2, 1, noOperands},
	OpMod: {"MOD", 2, 1, noOperands},
	OpNeg: {"NEG", 1, 1, noOperands},

	// Comparison
	OpEq:  {"EQ", 2, 1, noOperands},
	OpNe:  {"NE", 2, 1, noOperands},
	OpLt:  {"LT", 2, 1, noOperands},
	OpLe:  {"LE", 2, 1, noOperands},
	OpGt:  {"GT", 2, 1, noOperands},
	OpGe:  {"GE", 2, 1, noOperands},
	OpNot: {"NOT", 1, 1, noOperands},

	// Control flow
	OpJump:       {"JUMP", 0, 0, i16},
	OpJumpTrue:   {"JUMP_TRUE", 1, 0, i16},
	OpJumpFalse:  {"JUMP_FALSE", 1, 0, i16},
	OpJumpL:      {"JUMP_L", 0, 0, i32},
	OpJumpTrueL:  {"JUMP_TRUE_L", 1, 0, i32},
	OpJumpFalseL: {"JUMP_FALSE_L", 1, 0, i32},

	// Classes
	OpMakeClass:   {"MAKE_CLASS", 0, 1, u16},
	OpNewInstance: {"NEW_INSTANCE", 0, 1, noOperands},
	OpNew:         {"NEW", -1, 1, u8},            // Pops class + argc args
	OpCallMethod:  {"CALL_METHOD", -1, 1, u16u8}, // Pops receiver + argc args
	OpMakeClosure: {"MAKE_CLOSURE", 0, 1, u16},
	OpCall:        {"CALL", -1, 1, u8}, // Pops function + argc args

	// Errors
	OpThrowTypeError: {"THROW_TYPE_ERROR", 0, 0, u32},

	// Return
	OpReturn:          {"RETURN", 1, 0, noOperands},
	OpReturnUndefined: {"RETURN_UNDEFINED", 0, 0, noOperands},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen()
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpFalseL
}

// IsLongJump returns true for the i32-offset jump forms.
func (op Opcode) IsLongJump() bool {
	return op >= OpJumpL && op <= OpJumpFalseL
}

// IsReturn returns true if this opcode terminates execution.
func (op Opcode) IsReturn() bool {
	return op == OpReturn || op == OpReturnUndefined || op == OpThrowTypeError
}

// IsEnvAccess returns true for the compact and extended loads/stores of the
// frame environment.
func (op Opcode) IsEnvAccess() bool {
	return op >= OpLoadEnv && op <= OpStoreEnvL
}

// IsOuterEnvAccess returns true for loads/stores that address an enclosing
// environment by depth.
func (op Opcode) IsOuterEnvAccess() bool {
	return op >= OpLoadOuterEnv && op <= OpStoreOuterEnvL
}

// IsExtended returns true for the wide-index variant of an environment access.
func (op Opcode) IsExtended() bool {
	switch op {
	case OpLoadEnvL, OpStoreEnvL, OpLoadOuterEnvL, OpStoreOuterEnvL:
		return true
	}
	return false
}

// UsesCacheID returns true if the opcode carries a one-byte inline cache id.
func (op Opcode) UsesCacheID() bool {
	return op == OpInstallField || op == OpGetField || op == OpPutField
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
