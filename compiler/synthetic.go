package compiler

import "fmt"

// WideClassProgram builds a program whose main function declares one class
// "Wide" with n private fields #f0..#f(n-1), field i initialized to i, and
// returns a new instance. The class has two methods:
//
//	sum()  reads every field in order and returns the total
//	bump() adds 1 to every field and returns undefined
//
// With n above 255 the declaring scope needs extended environment operands
// and every chunk saturates its cache ids.
func WideClassProgram(n int) *Program {
	cls := &ClassDecl{Name: "Wide"}
	var sum Expr = &NumberLiteral{Value: 0}
	var bump []Stmt
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("#f%d", i)
		cls.Fields = append(cls.Fields, &FieldDecl{Name: name, Init: &NumberLiteral{Value: float64(i)}})
		sum = &Binary{Op: "+", Left: sum, Right: &PrivateGet{Object: &This{}, Field: name}}
		bump = append(bump, &ExprStmt{Expr: &PrivatePut{
			Object: &This{},
			Field:  name,
			Value: &Binary{
				Op:    "+",
				Left:  &PrivateGet{Object: &This{}, Field: name},
				Right: &NumberLiteral{Value: 1},
			},
		}})
	}
	cls.Methods = []*MethodDecl{
		{Name: "sum", Body: []Stmt{&ReturnStmt{Value: sum}}},
		{Name: "bump", Body: bump},
	}
	return &Program{
		Name: fmt.Sprintf("wide%d", n),
		Main: &FunctionDecl{
			Name:  "main",
			Decls: []Decl{cls},
			Body:  []Stmt{&ReturnStmt{Value: &New{Class: &Ident{Name: "Wide"}}}},
		},
	}
}
