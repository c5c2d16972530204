package parser

import (
	"testing"

	"github.com/kristofer/nova/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(src)
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("parse error for %q: %v", src, err)
	}
	return prog
}

func TestValAndBinaryExpr(t *testing.T) {
	prog := mustParse(t, `val x = 1 + 2 * 3`)
	if len(prog.Statements) != 1 {
		t.Fatalf("want 1 stmt, got %d", len(prog.Statements))
	}
	vd, ok := prog.Statements[0].(*ast.ValDecl)
	if !ok {
		t.Fatalf("want *ast.ValDecl, got %T", prog.Statements[0])
	}
	bin, ok := vd.Value.(*ast.Binary)
	if !ok || bin.Op != "+" {
		t.Fatalf("want top-level '+', got %#v", vd.Value)
	}
	rhs, ok := bin.Right.(*ast.Binary)
	if !ok || rhs.Op != "*" {
		t.Fatalf("want '*' to bind tighter than '+', got %#v", bin.Right)
	}
}

func TestChainedComparison(t *testing.T) {
	prog := mustParse(t, `val ok = a < b < c`)
	vd := prog.Statements[0].(*ast.ValDecl)
	cc, ok := vd.Value.(*ast.ChainedComparison)
	if !ok {
		t.Fatalf("want ChainedComparison, got %T", vd.Value)
	}
	if len(cc.Operands) != 3 || len(cc.Ops) != 2 {
		t.Fatalf("want 3 operands/2 ops, got %d/%d", len(cc.Operands), len(cc.Ops))
	}
}

func TestFunDeclAndCall(t *testing.T) {
	prog := mustParse(t, `fun add(a, b) = a + b
val r = add(1, 2)`)
	if len(prog.Statements) != 2 {
		t.Fatalf("want 2 stmts, got %d", len(prog.Statements))
	}
	fd, ok := prog.Statements[0].(*ast.FunDecl)
	if !ok || fd.Name != "add" || len(fd.Params) != 2 {
		t.Fatalf("unexpected fun decl: %#v", prog.Statements[0])
	}
	vd := prog.Statements[1].(*ast.ValDecl)
	call, ok := vd.Value.(*ast.Call)
	if !ok || len(call.Args) != 2 {
		t.Fatalf("want a 2-arg call, got %#v", vd.Value)
	}
}

func TestClassDeclWithBody(t *testing.T) {
	prog := mustParse(t, `class Point(val x, val y) {
    fun dist() = x + y
}`)
	cd, ok := prog.Statements[0].(*ast.ClassDecl)
	if !ok {
		t.Fatalf("want *ast.ClassDecl, got %T", prog.Statements[0])
	}
	if cd.Name != "Point" || len(cd.PrimaryParams) != 2 {
		t.Fatalf("unexpected class decl: %#v", cd)
	}
	if len(cd.Methods) != 1 || cd.Methods[0].Name != "dist" {
		t.Fatalf("expected one method 'dist', got %#v", cd.Methods)
	}
}

func TestIfExpression(t *testing.T) {
	prog := mustParse(t, `val m = if (a > b) { a } else { b }`)
	vd := prog.Statements[0].(*ast.ValDecl)
	ie, ok := vd.Value.(*ast.IfExpr)
	if !ok {
		t.Fatalf("want *ast.IfExpr, got %T", vd.Value)
	}
	if len(ie.Then) != 1 || len(ie.Else) != 1 {
		t.Fatalf("unexpected branches: %#v", ie)
	}
}

func TestWhenExpression(t *testing.T) {
	prog := mustParse(t, `val label = when (n) {
    0 -> "zero"
    in 1..9 -> "digit"
    is String -> "string"
    else -> "other"
}`)
	vd := prog.Statements[0].(*ast.ValDecl)
	we, ok := vd.Value.(*ast.WhenExpr)
	if !ok {
		t.Fatalf("want *ast.WhenExpr, got %T", vd.Value)
	}
	if len(we.Arms) != 4 {
		t.Fatalf("want 4 arms, got %d", len(we.Arms))
	}
	if we.Arms[1].RangeTest == nil {
		t.Fatalf("arm 1 should be a range test")
	}
	if we.Arms[2].TypeTest != "String" {
		t.Fatalf("arm 2 should be an is-test for String, got %q", we.Arms[2].TypeTest)
	}
	if !we.Arms[3].IsElse {
		t.Fatalf("arm 3 should be else")
	}
}

func TestListAndMapLiterals(t *testing.T) {
	prog := mustParse(t, `val xs = [1, 2, 3]
val m = [1: "a", 2: "b"]`)
	xs := prog.Statements[0].(*ast.ValDecl).Value.(*ast.ListLit)
	if len(xs.Elements) != 3 {
		t.Fatalf("want 3 elements, got %d", len(xs.Elements))
	}
	m := prog.Statements[1].(*ast.ValDecl).Value.(*ast.MapLit)
	if len(m.Entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(m.Entries))
	}
}

func TestLambdaTrailingCall(t *testing.T) {
	prog := mustParse(t, `val doubled = xs.map { it * 2 }`)
	vd := prog.Statements[0].(*ast.ValDecl)
	mc, ok := vd.Value.(*ast.MethodCall)
	if !ok || mc.Name != "map" || len(mc.Args) != 1 {
		t.Fatalf("want a 1-arg map() call, got %#v", vd.Value)
	}
	if _, ok := mc.Args[0].(*ast.LambdaLit); !ok {
		t.Fatalf("want trailing-lambda arg, got %T", mc.Args[0])
	}
}

func TestPipelineWithPlaceholder(t *testing.T) {
	prog := mustParse(t, `val y = x |> f(_, 2)`)
	vd := prog.Statements[0].(*ast.ValDecl)
	pl, ok := vd.Value.(*ast.Pipeline)
	if !ok {
		t.Fatalf("want *ast.Pipeline, got %T", vd.Value)
	}
	if _, ok := pl.Call.Args[0].(*ast.Placeholder); !ok {
		t.Fatalf("want placeholder as first call arg, got %#v", pl.Call.Args[0])
	}
}

func TestStringInterpolationParses(t *testing.T) {
	prog := mustParse(t, `val s = "hello ${name} you are ${age + 1}"`)
	vd := prog.Statements[0].(*ast.ValDecl)
	si, ok := vd.Value.(*ast.StringInterp)
	if !ok {
		t.Fatalf("want *ast.StringInterp, got %T", vd.Value)
	}
	if len(si.Parts) != 3 || len(si.Exprs) != 2 {
		t.Fatalf("want 3 parts/2 exprs, got %d/%d", len(si.Parts), len(si.Exprs))
	}
	if _, ok := si.Exprs[0].(*ast.Identifier); !ok {
		t.Fatalf("want identifier expr, got %T", si.Exprs[0])
	}
	if _, ok := si.Exprs[1].(*ast.Binary); !ok {
		t.Fatalf("want binary expr, got %T", si.Exprs[1])
	}
}

func TestElvisAndSafeAccess(t *testing.T) {
	prog := mustParse(t, `val v = a?.b ?: c`)
	vd := prog.Statements[0].(*ast.ValDecl)
	ev, ok := vd.Value.(*ast.Elvis)
	if !ok {
		t.Fatalf("want *ast.Elvis, got %T", vd.Value)
	}
	ma, ok := ev.Left.(*ast.MemberAccess)
	if !ok || !ma.Safe {
		t.Fatalf("want safe member access on left, got %#v", ev.Left)
	}
}

func TestForAndWhileStatements(t *testing.T) {
	prog := mustParse(t, `for (x in xs) { print(x) }
while (n > 0) { n = n - 1 }`)
	if len(prog.Statements) != 2 {
		t.Fatalf("want 2 stmts, got %d", len(prog.Statements))
	}
	if _, ok := prog.Statements[0].(*ast.ForStmt); !ok {
		t.Fatalf("want ForStmt, got %T", prog.Statements[0])
	}
	if _, ok := prog.Statements[1].(*ast.WhileStmt); !ok {
		t.Fatalf("want WhileStmt, got %T", prog.Statements[1])
	}
}

func TestGuardLet(t *testing.T) {
	prog := mustParse(t, `fun f(x) {
    guard val y = x else { return 0 }
    return y
}`)
	fd := prog.Statements[0].(*ast.FunDecl)
	if len(fd.Body) != 2 {
		t.Fatalf("want 2 body stmts, got %d", len(fd.Body))
	}
	gl, ok := fd.Body[0].(*ast.GuardLet)
	if !ok || gl.Name != "y" {
		t.Fatalf("want GuardLet binding 'y', got %#v", fd.Body[0])
	}
}

func TestCompoundAssign(t *testing.T) {
	prog := mustParse(t, `var n = 0
n += 1`)
	ca, ok := prog.Statements[1].(*ast.CompoundAssign)
	if !ok || ca.Op != "+=" {
		t.Fatalf("want CompoundAssign '+=', got %#v", prog.Statements[1])
	}
}
