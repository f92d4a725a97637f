package compiler

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// Unit files: declaration trees written as TOML
// ---------------------------------------------------------------------------

// A unit file spells out a Program as nested tables. Every expression and
// statement is a table with a "kind" key:
//
//	name = "counter"
//
//	[[main.decls]]
//	kind = "class"
//	name = "Counter"
//	fields = [{ name = "#count", init = { kind = "num", num = 0 } }]
//
//	[[main.decls.methods]]
//	name = "inc"
//	body = [
//	  { kind = "return", expr = { kind = "put", object = { kind = "this" }, field = "#count",
//	    value = { kind = "binary", op = "+",
//	      left = { kind = "get", object = { kind = "this" }, field = "#count" },
//	      right = { kind = "num", num = 1 } } } },
//	]
//
//	[[main.body]]
//	kind = "return"
//	expr = { kind = "new", class = { kind = "ident", name = "Counter" } }
//
// A decl of kind "function" nests a whole function (params, locals, decls,
// body) and is called with { kind = "invoke", callee = ..., args = [...] }.

type unitFile struct {
	Name string       `toml:"name"`
	Main unitFunction `toml:"main"`
}

type unitFunction struct {
	Name   string      `toml:"name"`
	Params []string    `toml:"params"`
	Locals []string    `toml:"locals"`
	Decls  []unitDecl  `toml:"decls"`
	Body   []*unitStmt `toml:"body"`
}

type unitDecl struct {
	Kind        string       `toml:"kind"`
	Name        string       `toml:"name"`
	Value       *unitExpr    `toml:"value"`
	Fields      []unitField  `toml:"fields"`
	Constructor *unitMethod  `toml:"constructor"`
	Methods     []unitMethod `toml:"methods"`

	// kind = "function"
	Params []string    `toml:"params"`
	Locals []string    `toml:"locals"`
	Decls  []unitDecl  `toml:"decls"`
	Body   []*unitStmt `toml:"body"`
}

type unitField struct {
	Name string    `toml:"name"`
	Init *unitExpr `toml:"init"`
}

type unitMethod struct {
	Name   string      `toml:"name"`
	Params []string    `toml:"params"`
	Locals []string    `toml:"locals"`
	Body   []*unitStmt `toml:"body"`
}

type unitStmt struct {
	Kind string      `toml:"kind"`
	Name string      `toml:"name"`
	Expr *unitExpr   `toml:"expr"`
	Then []*unitStmt `toml:"then"`
	Else []*unitStmt `toml:"else"`
}

type unitExpr struct {
	Kind    string      `toml:"kind"`
	Num     float64     `toml:"num"`
	Str     string      `toml:"str"`
	Bool    bool        `toml:"bool"`
	Name    string      `toml:"name"`
	Field   string      `toml:"field"`
	Op      string      `toml:"op"`
	Object  *unitExpr   `toml:"object"`
	Value   *unitExpr   `toml:"value"`
	Left    *unitExpr   `toml:"left"`
	Right   *unitExpr   `toml:"right"`
	Operand *unitExpr   `toml:"operand"`
	Class   *unitExpr   `toml:"class"`
	Callee  *unitExpr   `toml:"callee"`
	Args    []*unitExpr `toml:"args"`
}

// LoadUnit reads and converts a unit file.
func LoadUnit(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := ParseUnit(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseUnit converts unit file text into a Program. Unknown keys are
// rejected so typos do not silently drop code.
func ParseUnit(data []byte) (*Program, error) {
	var u unitFile
	md, err := toml.Decode(string(data), &u)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	b := &unitBuilder{}
	p := &Program{Name: u.Name, Main: b.function(&u.Main)}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(b.errors, "; "))
	}
	return p, nil
}

type unitBuilder struct {
	errors []string
}

func (b *unitBuilder) errorf(format string, args ...interface{}) {
	b.errors = append(b.errors, fmt.Sprintf(format, args...))
}

func (b *unitBuilder) function(f *unitFunction) *FunctionDecl {
	return &FunctionDecl{
		Name:   f.Name,
		Params: f.Params,
		Locals: f.Locals,
		Decls:  b.decls(f.Decls),
		Body:   b.stmts(f.Body),
	}
}

func (b *unitBuilder) decls(in []unitDecl) []Decl {
	var out []Decl
	for i := range in {
		d := &in[i]
		switch d.Kind {
		case "var":
			out = append(out, &VarDecl{Name: d.Name, Value: b.optExpr(d.Value)})
		case "class":
			out = append(out, b.class(d))
		case "function":
			out = append(out, &FunctionDecl{
				Name:   d.Name,
				Params: d.Params,
				Locals: d.Locals,
				Decls:  b.decls(d.Decls),
				Body:   b.stmts(d.Body),
			})
		default:
			b.errorf("decl %q: unknown kind %q", d.Name, d.Kind)
		}
	}
	return out
}

func (b *unitBuilder) class(d *unitDecl) *ClassDecl {
	cls := &ClassDecl{Name: d.Name}
	for _, f := range d.Fields {
		cls.Fields = append(cls.Fields, &FieldDecl{Name: f.Name, Init: b.optExpr(f.Init)})
	}
	if d.Constructor != nil {
		cls.Constructor = b.method(d.Constructor)
	}
	for i := range d.Methods {
		cls.Methods = append(cls.Methods, b.method(&d.Methods[i]))
	}
	return cls
}

func (b *unitBuilder) method(m *unitMethod) *MethodDecl {
	return &MethodDecl{Name: m.Name, Params: m.Params, Locals: m.Locals, Body: b.stmts(m.Body)}
}

func (b *unitBuilder) stmts(in []*unitStmt) []Stmt {
	var out []Stmt
	for _, s := range in {
		if st := b.stmt(s); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func (b *unitBuilder) stmt(s *unitStmt) Stmt {
	switch s.Kind {
	case "expr":
		return &ExprStmt{Expr: b.expr(s.Expr)}
	case "let":
		return &LetStmt{Name: s.Name, Value: b.optExpr(s.Expr)}
	case "return":
		return &ReturnStmt{Value: b.optExpr(s.Expr)}
	case "if":
		return &IfStmt{Cond: b.expr(s.Expr), Then: b.stmts(s.Then), Else: b.stmts(s.Else)}
	default:
		b.errorf("unknown statement kind %q", s.Kind)
		return nil
	}
}

func (b *unitBuilder) optExpr(e *unitExpr) Expr {
	if e == nil {
		return nil
	}
	return b.expr(e)
}

func (b *unitBuilder) exprs(in []*unitExpr) []Expr {
	out := make([]Expr, len(in))
	for i, e := range in {
		out[i] = b.expr(e)
	}
	return out
}

func (b *unitBuilder) expr(e *unitExpr) Expr {
	if e == nil {
		b.errorf("missing expression")
		return &UndefinedLiteral{}
	}
	switch e.Kind {
	case "num":
		return &NumberLiteral{Value: e.Num}
	case "str":
		return &StringLiteral{Value: e.Str}
	case "bool":
		return &BoolLiteral{Value: e.Bool}
	case "undefined":
		return &UndefinedLiteral{}
	case "ident":
		return &Ident{Name: e.Name}
	case "assign":
		return &Assign{Name: e.Name, Value: b.expr(e.Value)}
	case "this":
		return &This{}
	case "get":
		return &PrivateGet{Object: b.expr(e.Object), Field: e.Field}
	case "put":
		return &PrivatePut{Object: b.expr(e.Object), Field: e.Field, Value: b.expr(e.Value)}
	case "in":
		return &PrivateIn{Field: e.Field, Object: b.expr(e.Object)}
	case "binary":
		return &Binary{Op: e.Op, Left: b.expr(e.Left), Right: b.expr(e.Right)}
	case "unary":
		return &Unary{Op: e.Op, Operand: b.expr(e.Operand)}
	case "new":
		return &New{Class: b.expr(e.Class), Args: b.exprs(e.Args)}
	case "call":
		return &MethodCall{Receiver: b.expr(e.Object), Method: e.Name, Args: b.exprs(e.Args)}
	case "invoke":
		return &Call{Callee: b.expr(e.Callee), Args: b.exprs(e.Args)}
	default:
		b.errorf("unknown expression kind %q", e.Kind)
		return &UndefinedLiteral{}
	}
}
