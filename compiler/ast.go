package compiler

// ---------------------------------------------------------------------------
// Declaration tree
// ---------------------------------------------------------------------------

// The compiler consumes an already-parsed tree. Private field names keep
// their leading '#', e.g. "#count".

// Node is the interface implemented by all tree nodes.
type Node interface {
	node() // marker method
}

// Program is a compilation unit. Main is the outermost function; it runs
// once per VM.Run and acts as the factory for every class it declares.
type Program struct {
	Name string
	Main *FunctionDecl
}

// FunctionDecl is a function body together with the declarations of its
// scope. Locals lists extra local variable names; `let` statements add
// more as they are encountered.
//
// A FunctionDecl nested in Decls is bound to a local of the declaring
// function and closes over its environment. Every call of a nested
// function that declares classes is a separate class factory run.
type FunctionDecl struct {
	Name   string
	Params []string
	Locals []string
	Decls  []Decl
	Body   []Stmt
}

func (n *FunctionDecl) node() {}
func (n *FunctionDecl) decl() {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Decl is the interface for scope-level declarations.
type Decl interface {
	Node
	decl() // marker method
}

// VarDecl declares a binding captured by nested code. It lives in the
// scope's environment rather than in a local.
type VarDecl struct {
	Name  string
	Value Expr // nil means undefined
}

func (n *VarDecl) node() {}
func (n *VarDecl) decl() {}

// ClassDecl declares a class. Fields are private and installed in order
// by the constructor before the constructor body runs.
type ClassDecl struct {
	Name        string
	Fields      []*FieldDecl
	Constructor *MethodDecl // nil for the default constructor
	Methods     []*MethodDecl
}

func (n *ClassDecl) node() {}
func (n *ClassDecl) decl() {}

// FieldDecl is one private field with an optional initializer.
type FieldDecl struct {
	Name string
	Init Expr
}

// MethodDecl is a method or constructor.
type MethodDecl struct {
	Name   string
	Params []string
	Locals []string
	Body   []Stmt
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	Expr Expr
}

func (n *ExprStmt) node() {}
func (n *ExprStmt) stmt() {}

// LetStmt declares a local and assigns it.
type LetStmt struct {
	Name  string
	Value Expr
}

func (n *LetStmt) node() {}
func (n *LetStmt) stmt() {}

// ReturnStmt returns from the current function. Value may be nil.
type ReturnStmt struct {
	Value Expr
}

func (n *ReturnStmt) node() {}
func (n *ReturnStmt) stmt() {}

// IfStmt is a two-way conditional. Else may be empty.
type IfStmt struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (n *IfStmt) node() {}
func (n *IfStmt) stmt() {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NumberLiteral is a numeric constant.
type NumberLiteral struct {
	Value float64
}

func (n *NumberLiteral) node() {}
func (n *NumberLiteral) expr() {}

// StringLiteral is a string constant.
type StringLiteral struct {
	Value string
}

func (n *StringLiteral) node() {}
func (n *StringLiteral) expr() {}

// BoolLiteral is true or false.
type BoolLiteral struct {
	Value bool
}

func (n *BoolLiteral) node() {}
func (n *BoolLiteral) expr() {}

// UndefinedLiteral is the undefined value.
type UndefinedLiteral struct{}

func (n *UndefinedLiteral) node() {}
func (n *UndefinedLiteral) expr() {}

// Ident references a local, parameter, captured binding or class.
type Ident struct {
	Name string
}

func (n *Ident) node() {}
func (n *Ident) expr() {}

// Assign stores into a local or captured binding and yields the value.
type Assign struct {
	Name  string
	Value Expr
}

func (n *Assign) node() {}
func (n *Assign) expr() {}

// This is the receiver of the current method or constructor.
type This struct{}

func (n *This) node() {}
func (n *This) expr() {}

// PrivateGet reads Object.#Field.
type PrivateGet struct {
	Object Expr
	Field  string
}

func (n *PrivateGet) node() {}
func (n *PrivateGet) expr() {}

// PrivatePut writes Object.#Field = Value and yields Value.
type PrivatePut struct {
	Object Expr
	Field  string
	Value  Expr
}

func (n *PrivatePut) node() {}
func (n *PrivatePut) expr() {}

// PrivateIn is the brand test `#Field in Object`.
type PrivateIn struct {
	Field  string
	Object Expr
}

func (n *PrivateIn) node() {}
func (n *PrivateIn) expr() {}

// Binary is an arithmetic or comparison operator: + - * / % == != < <= > >=.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

func (n *Binary) node() {}
func (n *Binary) expr() {}

// Unary is negation (-) or logical not (!).
type Unary struct {
	Op      string
	Operand Expr
}

func (n *Unary) node() {}
func (n *Unary) expr() {}

// New constructs an instance: new Class(Args...).
type New struct {
	Class Expr
	Args  []Expr
}

func (n *New) node() {}
func (n *New) expr() {}

// Call invokes a function value: Callee(Args...).
type Call struct {
	Callee Expr
	Args   []Expr
}

func (n *Call) node() {}
func (n *Call) expr() {}

// MethodCall invokes Receiver.Method(Args...).
type MethodCall struct {
	Receiver Expr
	Method   string
	Args     []Expr
}

func (n *MethodCall) node() {}
func (n *MethodCall) expr() {}
