package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/classvm/pkg/bytecode"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("classvm.compiler")

// ---------------------------------------------------------------------------
// Codegen: compile the declaration tree to bytecode
// ---------------------------------------------------------------------------

// Compiler compiles a Program to a bytecode.Program. A Compiler may be
// reused but not shared between goroutines.
type Compiler struct {
	program   *bytecode.Program
	debugInfo bool
	errors    []string
}

// funcState is the compilation context of one chunk.
type funcState struct {
	chunk  *bytecode.Chunk
	locals map[string]uint8
	scope  *envScope  // environment chain seen by this chunk
	class  *ClassDecl // home class of methods and constructors
	ctor   bool
}

// CompileError carries every error found while compiling a program.
type CompileError struct {
	Program string
	Errors  []string
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("compile %s: %s", e.Program, e.Errors[0])
	if n := len(e.Errors) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// SetDebugInfo controls whether chunks record local variable names.
func (c *Compiler) SetDebugInfo(on bool) {
	c.debugInfo = on
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []string {
	return c.errors
}

// errorf records a compilation error.
func (c *Compiler) errorf(format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

// Compile compiles p with a fresh compiler.
func Compile(p *Program) (*bytecode.Program, error) {
	return NewCompiler().Compile(p)
}

// Compile compiles p. Main is always function 0.
func (c *Compiler) Compile(p *Program) (*bytecode.Program, error) {
	if p == nil || p.Main == nil {
		return nil, fmt.Errorf("compile: program has no main function")
	}
	name := p.Name
	if name == "" {
		name = "main"
	}
	c.errors = nil
	c.program = bytecode.NewProgram(name)

	chunk := c.newChunk(functionName(p.Main, name))
	c.program.Main = c.program.AddFunction(chunk)
	c.compileFunction(p.Main, chunk, nil)

	if len(c.errors) > 0 {
		return nil, &CompileError{Program: name, Errors: c.errors}
	}
	if err := c.program.Validate(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	log.Debugf("compiled %s: %d functions, %d classes", name, len(c.program.Functions), len(c.program.Classes))
	return c.program, nil
}

func functionName(fn *FunctionDecl, fallback string) string {
	if fn.Name != "" {
		return fn.Name
	}
	return fallback
}

func (c *Compiler) newChunk(name string) *bytecode.Chunk {
	chunk := bytecode.NewNamedChunk(name)
	if c.debugInfo {
		chunk.Flags |= bytecode.ChunkFlagDebug
	}
	return chunk
}

func (c *Compiler) newFuncState(chunk *bytecode.Chunk, params, locals []string) *funcState {
	fs := &funcState{chunk: chunk, locals: make(map[string]uint8)}
	chunk.LocalCount = 1
	if c.debugInfo {
		chunk.VarNames = []string{"this"}
	}
	if len(params) > math.MaxUint8-1 {
		c.errorf("%s: too many parameters (%d)", chunk.Name, len(params))
		params = params[:math.MaxUint8-1]
	}
	for _, p := range params {
		if _, dup := fs.locals[p]; dup {
			c.errorf("%s: duplicate parameter %s", chunk.Name, p)
			continue
		}
		c.declareLocal(fs, p)
	}
	chunk.ParamCount = uint8(len(params))
	if c.debugInfo {
		chunk.ParamNames = append([]string(nil), params...)
	}
	for _, l := range locals {
		c.declareLocal(fs, l)
	}
	return fs
}

// declareLocal returns the slot of name, allocating one if needed.
func (c *Compiler) declareLocal(fs *funcState, name string) uint8 {
	if slot, ok := fs.locals[name]; ok {
		return slot
	}
	if fs.chunk.LocalCount == math.MaxUint8 {
		c.errorf("%s: too many locals", fs.chunk.Name)
		return 0
	}
	slot := fs.chunk.LocalCount
	fs.chunk.LocalCount++
	fs.locals[name] = slot
	if c.debugInfo {
		fs.chunk.VarNames = append(fs.chunk.VarNames, name)
	}
	return slot
}

// insertJump places a forward jump at offset at, once the code it skips has
// been emitted. It returns the length of the inserted instruction.
func (c *Compiler) insertJump(fs *funcState, at int, op bytecode.Opcode, target int) int {
	n, err := fs.chunk.InsertJump(at, op, target)
	if err != nil {
		c.errorf("%s: %v", fs.chunk.Name, err)
	}
	return n
}

// ---------------------------------------------------------------------------
// Functions and classes
// ---------------------------------------------------------------------------

// compileFunction compiles a declaring function: create the environment,
// create every private name tag, evaluate declarations in order, then run
// the body. parent is the environment chain the function closes over.
func (c *Compiler) compileFunction(fn *FunctionDecl, chunk *bytecode.Chunk, parent *envScope) {
	fs := c.newFuncState(chunk, fn.Params, fn.Locals)
	c.checkDecls(fn.Decls)

	layout := AllocateEnvironment(fn.Decls)
	fs.scope = parent
	if layout.Size > 0 {
		chunk.EmitCreateEnv(layout.Size)
		fs.scope = &envScope{layout: layout, parent: parent}
		emitPrivateNames(chunk, layout)
	}

	for _, d := range fn.Decls {
		switch d := d.(type) {
		case *VarDecl:
			// Every slot is written, undefined or not.
			c.compileOptional(fs, d.Value)
			chunk.EmitStoreEnv(layout.Bindings[d.Name])
		case *ClassDecl:
			idx := c.compileClass(d, fs.scope)
			chunk.EmitU16(bytecode.OpMakeClass, idx)
			chunk.EmitU8(bytecode.OpStoreLocal, c.declareLocal(fs, d.Name))
		case *FunctionDecl:
			nested := c.newChunk(chunk.Name + "." + d.Name)
			idx := c.program.AddFunction(nested)
			c.compileFunction(d, nested, fs.scope)
			chunk.EmitU16(bytecode.OpMakeClosure, idx)
			chunk.EmitU8(bytecode.OpStoreLocal, c.declareLocal(fs, d.Name))
		}
	}

	c.compileStatements(fs, fn.Body)
	chunk.Emit(bytecode.OpReturnUndefined)
	log.Debugf("compiled function %s (%d bytes, %d env slots)", chunk.Name, chunk.CodeLen(), layout.Size)
}

func (c *Compiler) checkDecls(decls []Decl) {
	names := make(map[string]bool)
	for _, d := range decls {
		var name string
		switch d := d.(type) {
		case *VarDecl:
			name = d.Name
		case *FunctionDecl:
			name = d.Name
			if name == "" {
				c.errorf("nested function without a name")
				continue
			}
		case *ClassDecl:
			name = d.Name
			fields := make(map[string]bool, len(d.Fields))
			for _, f := range d.Fields {
				if !strings.HasPrefix(f.Name, "#") || len(f.Name) < 2 {
					c.errorf("class %s: invalid private name %q", d.Name, f.Name)
				}
				if fields[f.Name] {
					c.errorf("class %s: duplicate private name %s", d.Name, f.Name)
				}
				fields[f.Name] = true
			}
		default:
			c.errorf("unknown declaration type: %T", d)
			continue
		}
		if names[name] {
			c.errorf("duplicate declaration of %s", name)
		}
		names[name] = true
	}
}

// compileClass compiles constructor, initializer and methods of d and
// returns the class index for OpMakeClass. scope is the environment chain
// of the declaring function; class code runs directly in it.
func (c *Compiler) compileClass(d *ClassDecl, scope *envScope) uint16 {
	info := &bytecode.ClassInfo{Name: d.Name}
	if len(d.Fields) > 0 {
		info.FieldSlots = scope.layout.ClassSlots(d)
	}
	for _, f := range d.Fields {
		info.Fields = append(info.Fields, f.Name)
	}
	info.Constructor = c.compileConstructor(d, scope)
	info.Initializer = c.compileInitializer(d, scope)

	seen := make(map[string]bool, len(d.Methods))
	for _, m := range d.Methods {
		if seen[m.Name] {
			c.errorf("class %s: duplicate method %s", d.Name, m.Name)
			continue
		}
		seen[m.Name] = true
		info.Methods = append(info.Methods, bytecode.MethodInfo{Name: m.Name, Function: c.compileMethod(d, m, scope)})
	}
	return c.program.AddClass(info)
}

func (c *Compiler) compileConstructor(d *ClassDecl, scope *envScope) uint16 {
	chunk := c.newChunk(d.Name + ".constructor")
	chunk.Flags |= bytecode.ChunkFlagConstructor
	idx := c.program.AddFunction(chunk)

	var params, locals []string
	var body []Stmt
	if d.Constructor != nil {
		params, locals, body = d.Constructor.Params, d.Constructor.Locals, d.Constructor.Body
	}
	fs := c.newFuncState(chunk, params, locals)
	fs.scope, fs.class, fs.ctor = scope, d, true

	chunk.Emit(bytecode.OpNewInstance)
	chunk.EmitU8(bytecode.OpStoreLocal, 0)
	guard := c.emitFieldInstaller(fs)
	c.compileStatements(fs, body)
	chunk.EmitU8(bytecode.OpLoadLocal, 0)
	chunk.Emit(bytecode.OpReturn)
	c.emitInstallFailure(fs, guard)
	return idx
}

func (c *Compiler) compileInitializer(d *ClassDecl, scope *envScope) uint16 {
	chunk := c.newChunk(d.Name + ".<instance_members_initializer>")
	chunk.Flags |= bytecode.ChunkFlagInitializer
	idx := c.program.AddFunction(chunk)

	fs := c.newFuncState(chunk, nil, nil)
	fs.scope, fs.class = scope, d

	guard := c.emitFieldInstaller(fs)
	chunk.Emit(bytecode.OpReturnUndefined)
	c.emitInstallFailure(fs, guard)
	return idx
}

func (c *Compiler) compileMethod(d *ClassDecl, m *MethodDecl, scope *envScope) uint16 {
	chunk := c.newChunk(d.Name + "." + m.Name)
	idx := c.program.AddFunction(chunk)

	fs := c.newFuncState(chunk, m.Params, m.Locals)
	fs.scope, fs.class = scope, d
	c.compileStatements(fs, m.Body)
	chunk.Emit(bytecode.OpReturnUndefined)
	return idx
}

// ---------------------------------------------------------------------------
// Statement compilation
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(fs *funcState, stmts []Stmt) {
	for _, stmt := range stmts {
		c.compileStmt(fs, stmt)
	}
}

func (c *Compiler) compileStmt(fs *funcState, stmt Stmt) {
	chunk := fs.chunk
	switch s := stmt.(type) {
	case *ExprStmt:
		c.compileExpr(fs, s.Expr)
		chunk.Emit(bytecode.OpPop)
	case *LetStmt:
		c.compileOptional(fs, s.Value)
		chunk.EmitU8(bytecode.OpStoreLocal, c.declareLocal(fs, s.Name))
	case *ReturnStmt:
		if fs.ctor {
			// Constructors always yield the new instance.
			if s.Value != nil {
				c.compileExpr(fs, s.Value)
				chunk.Emit(bytecode.OpPop)
			}
			chunk.EmitU8(bytecode.OpLoadLocal, 0)
			chunk.Emit(bytecode.OpReturn)
			return
		}
		if s.Value == nil {
			chunk.Emit(bytecode.OpReturnUndefined)
			return
		}
		c.compileExpr(fs, s.Value)
		chunk.Emit(bytecode.OpReturn)
	case *IfStmt:
		// Both jumps go in after their branches are emitted: the inner one
		// first, so the outer one measures the final layout.
		c.compileExpr(fs, s.Cond)
		then := chunk.CurrentOffset()
		c.compileStatements(fs, s.Then)
		if len(s.Else) == 0 {
			c.insertJump(fs, then, bytecode.OpJumpFalse, chunk.CurrentOffset())
			return
		}
		els := chunk.CurrentOffset()
		c.compileStatements(fs, s.Else)
		n := c.insertJump(fs, els, bytecode.OpJump, chunk.CurrentOffset())
		c.insertJump(fs, then, bytecode.OpJumpFalse, els+n)
	default:
		c.errorf("unknown statement type: %T", stmt)
	}
}

// ---------------------------------------------------------------------------
// Expression compilation
// ---------------------------------------------------------------------------

var binaryOps = map[string]bytecode.Opcode{
	"+":  bytecode.OpAdd,
	"-":  bytecode.OpSub,
	"*":  bytecode.OpMul,
	"/":  bytecode.OpDiv,
	"%":  bytecode.OpMod,
	"==": bytecode.OpEq,
	"!=": bytecode.OpNe,
	"<":  bytecode.OpLt,
	"<=": bytecode.OpLe,
	">":  bytecode.OpGt,
	">=": bytecode.OpGe,
}

func (c *Compiler) compileOptional(fs *funcState, expr Expr) {
	if expr == nil {
		fs.chunk.Emit(bytecode.OpConstUndefined)
		return
	}
	c.compileExpr(fs, expr)
}

func (c *Compiler) compileExpr(fs *funcState, expr Expr) {
	chunk := fs.chunk
	switch e := expr.(type) {
	case *NumberLiteral:
		if e.Value == 0 && !math.Signbit(e.Value) {
			chunk.Emit(bytecode.OpConstZero)
		} else {
			chunk.EmitConstant(bytecode.NumberConstant(e.Value))
		}
	case *StringLiteral:
		chunk.EmitConstant(bytecode.StringConstant(e.Value))
	case *BoolLiteral:
		if e.Value {
			chunk.Emit(bytecode.OpConstTrue)
		} else {
			chunk.Emit(bytecode.OpConstFalse)
		}
	case *UndefinedLiteral:
		chunk.Emit(bytecode.OpConstUndefined)
	case *Ident:
		c.compileLoad(fs, e.Name)
	case *Assign:
		c.compileExpr(fs, e.Value)
		chunk.Emit(bytecode.OpDup) // Leave value on stack
		c.compileStore(fs, e.Name)
	case *This:
		if fs.class == nil {
			c.errorf("%s: this outside a class", chunk.Name)
		}
		chunk.EmitU8(bytecode.OpLoadLocal, 0)
	case *PrivateGet:
		c.compilePrivateGet(fs, e)
	case *PrivatePut:
		c.compilePrivatePut(fs, e)
	case *PrivateIn:
		c.compilePrivateIn(fs, e)
	case *Binary:
		op, ok := binaryOps[e.Op]
		if !ok {
			c.errorf("unknown binary operator %q", e.Op)
			return
		}
		c.compileExpr(fs, e.Left)
		c.compileExpr(fs, e.Right)
		chunk.Emit(op)
	case *Unary:
		c.compileExpr(fs, e.Operand)
		switch e.Op {
		case "-":
			chunk.Emit(bytecode.OpNeg)
		case "!":
			chunk.Emit(bytecode.OpNot)
		default:
			c.errorf("unknown unary operator %q", e.Op)
		}
	case *New:
		c.compileExpr(fs, e.Class)
		c.compileArgs(fs, e.Args)
		chunk.EmitU8(bytecode.OpNew, uint8(len(e.Args)))
	case *Call:
		c.compileExpr(fs, e.Callee)
		c.compileArgs(fs, e.Args)
		chunk.EmitU8(bytecode.OpCall, uint8(len(e.Args)))
	case *MethodCall:
		c.compileExpr(fs, e.Receiver)
		c.compileArgs(fs, e.Args)
		name := chunk.AddString(e.Method)
		if name > math.MaxUint16 {
			c.errorf("%s: method name %s is past the u16 constant index", chunk.Name, e.Method)
			return
		}
		chunk.EmitWithOperand(bytecode.OpCallMethod, byte(name>>8), byte(name), byte(len(e.Args)))
	default:
		c.errorf("unknown expression type: %T", expr)
	}
}

func (c *Compiler) compileArgs(fs *funcState, args []Expr) {
	if len(args) > math.MaxUint8 {
		c.errorf("%s: too many arguments (%d)", fs.chunk.Name, len(args))
	}
	for _, a := range args {
		c.compileExpr(fs, a)
	}
}

// ---------------------------------------------------------------------------
// Variable compilation
// ---------------------------------------------------------------------------

// Identifiers resolve to a local first, then to the nearest captured
// binding along the environment chain.

func (c *Compiler) compileLoad(fs *funcState, name string) {
	if slot, ok := fs.locals[name]; ok {
		fs.chunk.EmitU8(bytecode.OpLoadLocal, slot)
		return
	}
	depth, slot, ok := fs.scope.resolve(name)
	switch {
	case !ok:
		c.errorf("%s: unknown identifier %s", fs.chunk.Name, name)
	case depth == 0:
		fs.chunk.EmitLoadEnv(slot)
	case depth > math.MaxUint8:
		c.errorf("%s: %s is %d environments out", fs.chunk.Name, name, depth)
	default:
		fs.chunk.EmitLoadOuterEnv(uint8(depth), slot)
	}
}

func (c *Compiler) compileStore(fs *funcState, name string) {
	if slot, ok := fs.locals[name]; ok {
		fs.chunk.EmitU8(bytecode.OpStoreLocal, slot)
		return
	}
	depth, slot, ok := fs.scope.resolve(name)
	switch {
	case !ok:
		c.errorf("%s: assignment to unknown identifier %s", fs.chunk.Name, name)
	case depth == 0:
		fs.chunk.EmitStoreEnv(slot)
	case depth > math.MaxUint8:
		c.errorf("%s: %s is %d environments out", fs.chunk.Name, name, depth)
	default:
		fs.chunk.EmitStoreOuterEnv(uint8(depth), slot)
	}
}
