package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/chazu/classvm/pkg/bytecode"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("classvm.vm")

// Defaults for VM limits.
const (
	DefaultStackSize = 1 << 16
	DefaultMaxDepth  = 1024
)

// ---------------------------------------------------------------------------
// VM: executes one compiled program
// ---------------------------------------------------------------------------

// VM executes a compiled program. The program itself is read-only and may
// be shared; each VM owns its shapes and inline cache cells. A VM is not
// safe for concurrent use.
type VM struct {
	// Trace prints every instruction to TraceOut before executing it.
	Trace    bool
	TraceOut io.Writer

	StackSize int
	MaxDepth  int

	program   *bytecode.Program
	rootShape *Shape
	caches    *FieldCacheTable
	stack     []Value
	depth     int
}

// NewVM creates a VM for p.
func NewVM(p *bytecode.Program) *VM {
	return &VM{
		TraceOut:  os.Stderr,
		StackSize: DefaultStackSize,
		MaxDepth:  DefaultMaxDepth,
		program:   p,
		rootShape: NewRootShape(),
		caches:    NewFieldCacheTable(),
	}
}

// Program returns the program being executed.
func (vm *VM) Program() *bytecode.Program {
	return vm.program
}

// Caches returns the inline cache side table.
func (vm *VM) Caches() *FieldCacheTable {
	return vm.caches
}

// CacheStats returns aggregate inline cache statistics.
func (vm *VM) CacheStats() CacheStats {
	return vm.caches.Stats()
}

// Run executes the program's main function and returns its result.
func (vm *VM) Run() (Value, error) {
	main, err := vm.program.MainFunction()
	if err != nil {
		return Undefined, err
	}
	log.Debugf("running %s", vm.program.Name)
	return vm.execute(&Closure{chunk: main}, Undefined, nil)
}

// Construct runs the constructor of c with args, like `new C(args)`.
func (vm *VM) Construct(c *Class, args ...Value) (Value, error) {
	return vm.construct(c, args)
}

func (vm *VM) construct(c *Class, args []Value) (Value, error) {
	return vm.execute(c.constructor, Undefined, args)
}

// Call invokes a function value with args, like `fn(args)`.
func (vm *VM) Call(fn Value, args ...Value) (Value, error) {
	return vm.call(fn, args)
}

func (vm *VM) call(fn Value, args []Value) (Value, error) {
	cl, ok := fn.AsClosure()
	if !ok {
		return Undefined, newTypeError("%s is not a function", fn.Kind())
	}
	return vm.execute(cl, Undefined, args)
}

// CallMethod invokes the named method on recv.
func (vm *VM) CallMethod(recv Value, name string, args ...Value) (Value, error) {
	return vm.callMethod(recv, name, args)
}

func (vm *VM) callMethod(recv Value, name string, args []Value) (Value, error) {
	inst, ok := recv.AsInstance()
	if !ok {
		return Undefined, newTypeError("Cannot call method %s of %s", name, recv.Kind())
	}
	m, ok := inst.class.Method(name)
	if !ok {
		return Undefined, newTypeError("%s.%s is not a function", inst.class.Name(), name)
	}
	return vm.execute(m, recv, args)
}

// InitializeInstance re-runs c's field installer against inst. Because the
// installer refuses to install a tag twice, running it on an instance that
// already holds c's fields raises a TypeError and leaves the fields as
// they were.
func (vm *VM) InitializeInstance(c *Class, inst *Instance) error {
	if c.initializer == nil {
		return fmt.Errorf("class %s has no initializer", c.Name())
	}
	_, err := vm.execute(c.initializer, FromInstance(inst), nil)
	return err
}

// ResetCaches empties every inline cache cell. Results are unaffected.
func (vm *VM) ResetCaches() {
	vm.caches.Reset()
}
