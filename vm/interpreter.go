package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/classvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Frame: execution state for one activation
// ---------------------------------------------------------------------------

// frame is the state of a single function activation. Local 0 is the
// receiver (undefined outside methods); parameters start at local 1.
type frame struct {
	closure *Closure
	chunk   *bytecode.Chunk
	env     *Environment
	locals  []Value
	base    int // operand stack height on entry
	ip      int
}

var (
	errStackUnderflow = errors.New("operand stack underflow")
	errStackOverflow  = errors.New("operand stack overflow")
	errNoEnvironment  = errors.New("no environment in scope")
)

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) error {
	if len(vm.stack) >= vm.StackSize {
		return errStackOverflow
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop(f *frame) (Value, error) {
	if len(vm.stack) <= f.base {
		return Undefined, errStackUnderflow
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) popN(f *frame, n int) ([]Value, error) {
	if len(vm.stack)-n < f.base {
		return nil, errStackUnderflow
	}
	out := make([]Value, n)
	copy(out, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	return out, nil
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// execute runs cl with the given receiver and arguments and returns its
// result. Language exceptions come back as *TypeError; everything else is
// wrapped in *RuntimeError.
func (vm *VM) execute(cl *Closure, this Value, args []Value) (Value, error) {
	if vm.depth >= vm.MaxDepth {
		return Undefined, &RuntimeError{Function: cl.chunk.Name, Err: fmt.Errorf("call depth exceeded (%d)", vm.MaxDepth)}
	}
	vm.depth++
	defer func() { vm.depth-- }()

	chunk := cl.chunk
	n := int(chunk.LocalCount)
	if need := int(chunk.ParamCount) + 1; n < need {
		n = need
	}
	f := &frame{
		closure: cl,
		chunk:   chunk,
		env:     cl.env,
		locals:  make([]Value, n),
		base:    len(vm.stack),
	}
	f.locals[0] = this
	for i := 0; i < int(chunk.ParamCount) && i < len(args); i++ {
		f.locals[i+1] = args[i]
	}

	result, err := vm.run(f)
	vm.stack = vm.stack[:f.base]
	if err != nil {
		var te *TypeError
		var re *RuntimeError
		if errors.As(err, &te) || errors.As(err, &re) {
			return Undefined, err
		}
		return Undefined, &RuntimeError{Function: chunk.Name, Offset: f.ip, Err: err}
	}
	return result, nil
}

func (vm *VM) run(f *frame) (Value, error) {
	code := f.chunk.Code
	for f.ip < len(code) {
		start := f.ip
		if vm.Trace {
			fmt.Fprintf(vm.TraceOut, "[%s] %s\n", f.chunk.Name, f.chunk.DisassembleInstruction(start))
		}
		op := bytecode.Opcode(code[start])
		if !op.IsValid() {
			return Undefined, fmt.Errorf("unknown opcode 0x%02X", byte(op))
		}
		width := op.InstructionLen()
		if start+width > len(code) {
			return Undefined, fmt.Errorf("truncated %s", op)
		}
		f.ip = start + width
		operands := code[start+1 : start+width]

		switch op {
		case bytecode.OpPop:
			if _, err := vm.pop(f); err != nil {
				return Undefined, err
			}

		case bytecode.OpDup:
			if len(vm.stack) <= f.base {
				return Undefined, errStackUnderflow
			}
			if err := vm.push(vm.stack[len(vm.stack)-1]); err != nil {
				return Undefined, err
			}


		// Constants
		case bytecode.OpConst, bytecode.OpConstL:
			k := f.chunk.GetConstant(poolIndex(op, operands))
			var v Value
			switch k.Kind {
			case bytecode.ConstNumber:
				v = Number(k.Number)
			case bytecode.ConstString:
				v = String(k.String)
			}
			if err := vm.push(v); err != nil {
				return Undefined, err
			}
		case bytecode.OpConstUndefined:
			if err := vm.push(Undefined); err != nil {
				return Undefined, err
			}
		case bytecode.OpConstTrue:
			if err := vm.push(True); err != nil {
				return Undefined, err
			}
		case bytecode.OpConstFalse:
			if err := vm.push(False); err != nil {
				return Undefined, err
			}
		case bytecode.OpConstZero:
			if err := vm.push(Number(0)); err != nil {
				return Undefined, err
			}

		// Locals
		case bytecode.OpLoadLocal:
			i := int(operands[0])
			if i >= len(f.locals) {
				return Undefined, fmt.Errorf("local %d out of range", i)
			}
			if err := vm.push(f.locals[i]); err != nil {
				return Undefined, err
			}
		case bytecode.OpStoreLocal:
			i := int(operands[0])
			if i >= len(f.locals) {
				return Undefined, fmt.Errorf("local %d out of range", i)
			}
			v, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			f.locals[i] = v

		// Environment
		case bytecode.OpCreateEnv:
			f.env = NewEnvironment(binary.BigEndian.Uint32(operands), f.closure.env)
			log.Debugf("%s: environment of %d slots", f.chunk.Name, f.env.Len())
		case bytecode.OpLoadEnv, bytecode.OpLoadEnvL:
			if f.env == nil {
				return Undefined, errNoEnvironment
			}
			v, err := f.env.Get(envIndex(op, operands))
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(v); err != nil {
				return Undefined, err
			}
		case bytecode.OpStoreEnv, bytecode.OpStoreEnvL:
			if f.env == nil {
				return Undefined, errNoEnvironment
			}
			v, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			if err := f.env.Set(envIndex(op, operands), v); err != nil {
				return Undefined, err
			}
		case bytecode.OpLoadOuterEnv, bytecode.OpLoadOuterEnvL:
			env, err := f.env.Ancestor(int(operands[0]))
			if err != nil {
				return Undefined, err
			}
			v, err := env.Get(envIndex(op, operands[1:]))
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(v); err != nil {
				return Undefined, err
			}
		case bytecode.OpStoreOuterEnv, bytecode.OpStoreOuterEnvL:
			env, err := f.env.Ancestor(int(operands[0]))
			if err != nil {
				return Undefined, err
			}
			v, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			if err := env.Set(envIndex(op, operands[1:]), v); err != nil {
				return Undefined, err
			}

		// Private fields
		case bytecode.OpCreatePrivateName, bytecode.OpCreatePrivateNameL:
			k := f.chunk.GetConstant(poolIndex(op, operands))
			if err := vm.push(FromPrivateName(NewPrivateName(k.String))); err != nil {
				return Undefined, err
			}
		case bytecode.OpFieldExists:
			vals, err := vm.popN(f, 2)
			if err != nil {
				return Undefined, err
			}
			ok, err := vm.fieldExists(vals[0], vals[1])
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(Bool(ok)); err != nil {
				return Undefined, err
			}
		case bytecode.OpInstallField:
			vals, err := vm.popN(f, 3)
			if err != nil {
				return Undefined, err
			}
			if err := vm.installField(f.chunk, operands[0], vals[0], vals[1], vals[2]); err != nil {
				return Undefined, err
			}
		case bytecode.OpGetField:
			vals, err := vm.popN(f, 2)
			if err != nil {
				return Undefined, err
			}
			v, err := vm.getField(f.chunk, operands[0], vals[0], vals[1])
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(v); err != nil {
				return Undefined, err
			}
		case bytecode.OpPutField:
			vals, err := vm.popN(f, 3)
			if err != nil {
				return Undefined, err
			}
			if err := vm.putField(f.chunk, operands[0], vals[0], vals[1], vals[2]); err != nil {
				return Undefined, err
			}
			if err := vm.push(vals[1]); err != nil {
				return Undefined, err
			}

		// Arithmetic and comparison
		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
			bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			vals, err := vm.popN(f, 2)
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(binaryOp(op, vals[0], vals[1])); err != nil {
				return Undefined, err
			}
		case bytecode.OpNeg:
			v, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(Number(-v.AsNumber())); err != nil {
				return Undefined, err
			}
		case bytecode.OpNot:
			v, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(Bool(!v.Truthy())); err != nil {
				return Undefined, err
			}

		// Jumps
		case bytecode.OpJump, bytecode.OpJumpL:
			f.ip += jumpOffset(op, operands)
		case bytecode.OpJumpTrue, bytecode.OpJumpFalse, bytecode.OpJumpTrueL, bytecode.OpJumpFalseL:
			v, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			onTrue := op == bytecode.OpJumpTrue || op == bytecode.OpJumpTrueL
			if v.Truthy() == onTrue {
				f.ip += jumpOffset(op, operands)
			}

		// Classes
		case bytecode.OpMakeClass:
			info, err := vm.program.Class(binary.BigEndian.Uint16(operands))
			if err != nil {
				return Undefined, err
			}
			c, err := newClass(vm.program, info, f.env)
			if err != nil {
				return Undefined, err
			}
			log.Debugf("class %s created", c.Name())
			if err := vm.push(FromClass(c)); err != nil {
				return Undefined, err
			}
		case bytecode.OpNewInstance:
			home := f.closure.home
			if home == nil {
				return Undefined, fmt.Errorf("%s outside a class", op)
			}
			if err := vm.push(FromInstance(NewInstance(home, vm.rootShape))); err != nil {
				return Undefined, err
			}
		case bytecode.OpNew:
			args, err := vm.popN(f, int(operands[0]))
			if err != nil {
				return Undefined, err
			}
			cv, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			c, ok := cv.AsClass()
			if !ok {
				return Undefined, newTypeError("%s is not a constructor", cv)
			}
			v, err := vm.construct(c, args)
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(v); err != nil {
				return Undefined, err
			}
		case bytecode.OpCallMethod:
			name := f.chunk.GetConstant(uint32(binary.BigEndian.Uint16(operands))).String
			args, err := vm.popN(f, int(operands[2]))
			if err != nil {
				return Undefined, err
			}
			recv, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			v, err := vm.callMethod(recv, name, args)
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(v); err != nil {
				return Undefined, err
			}

		// Functions
		case bytecode.OpMakeClosure:
			chunk, err := vm.program.Function(binary.BigEndian.Uint16(operands))
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(FromClosure(&Closure{chunk: chunk, env: f.env})); err != nil {
				return Undefined, err
			}
		case bytecode.OpCall:
			args, err := vm.popN(f, int(operands[0]))
			if err != nil {
				return Undefined, err
			}
			callee, err := vm.pop(f)
			if err != nil {
				return Undefined, err
			}
			v, err := vm.call(callee, args)
			if err != nil {
				return Undefined, err
			}
			if err := vm.push(v); err != nil {
				return Undefined, err
			}

		// Errors and return
		case bytecode.OpThrowTypeError:
			k := f.chunk.GetConstant(binary.BigEndian.Uint32(operands))
			return Undefined, &TypeError{Message: k.String}
		case bytecode.OpReturn:
			return vm.pop(f)
		case bytecode.OpReturnUndefined:
			return Undefined, nil

		default:
			return Undefined, fmt.Errorf("unimplemented opcode %s", op)
		}
	}
	return Undefined, nil
}

// envIndex decodes a slot index; outer forms pass the operands after the
// depth byte.
func envIndex(op bytecode.Opcode, operands []byte) uint32 {
	if op.IsExtended() {
		return binary.BigEndian.Uint32(operands)
	}
	return uint32(operands[0])
}

func poolIndex(op bytecode.Opcode, operands []byte) uint32 {
	if op == bytecode.OpConstL || op == bytecode.OpCreatePrivateNameL {
		return binary.BigEndian.Uint32(operands)
	}
	return uint32(binary.BigEndian.Uint16(operands))
}

func jumpOffset(op bytecode.Opcode, operands []byte) int {
	if op.IsLongJump() {
		return int(int32(binary.BigEndian.Uint32(operands)))
	}
	return int(int16(binary.BigEndian.Uint16(operands)))
}

func binaryOp(op bytecode.Opcode, a, b Value) Value {
	switch op {
	case bytecode.OpAdd:
		if a.IsString() || b.IsString() {
			return String(a.String() + b.String())
		}
		return Number(a.AsNumber() + b.AsNumber())
	case bytecode.OpSub:
		return Number(a.AsNumber() - b.AsNumber())
	case bytecode.OpMul:
		return Number(a.AsNumber() * b.AsNumber())
	case bytecode.OpDiv:
		return Number(a.AsNumber() / b.AsNumber())
	case bytecode.OpMod:
		return Number(math.Mod(a.AsNumber(), b.AsNumber()))
	case bytecode.OpEq:
		return Bool(a.StrictEquals(b))
	case bytecode.OpNe:
		return Bool(!a.StrictEquals(b))
	}

	if a.IsString() && b.IsString() {
		x, y := a.AsString(), b.AsString()
		switch op {
		case bytecode.OpLt:
			return Bool(x < y)
		case bytecode.OpLe:
			return Bool(x <= y)
		case bytecode.OpGt:
			return Bool(x > y)
		default:
			return Bool(x >= y)
		}
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case bytecode.OpLt:
		return Bool(x < y)
	case bytecode.OpLe:
		return Bool(x <= y)
	case bytecode.OpGt:
		return Bool(x > y)
	default:
		return Bool(x >= y)
	}
}
