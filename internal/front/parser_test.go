package front

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomlang/loomc/internal/ast"
	"github.com/loomlang/loomc/internal/runtimeasm"
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/types"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	tbl := symtab.NewTable()
	rt := runtimeasm.NewLabels(tbl)
	prog, err := Parse(src, tbl, rt)
	require.NoError(t, err)
	return prog
}

// The six spec.md §8 end-to-end scenarios: each must parse and type-check.

func TestScenarioLiteralReturn(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { 42 }`)
	require.NotZero(t, prog.Entry.ID)
	require.Len(t, prog.Funcs, 1)
}

func TestScenarioReadAndArithmetic(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { let x = read(); x * x }`)
	require.Len(t, prog.Funcs, 1)
}

func TestScenarioPrintSemantics(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { print(read() + read()); 0 }`)
	require.Len(t, prog.Funcs, 1)
}

func TestScenarioRecursionAndBranching(t *testing.T) {
	prog := parse(t, `fn fib(n: I64) -> I64 { if n < 2 { n } else { fib(n-1) + fib(n-2) } } fn main() -> I64 { fib(10) }`)
	require.Len(t, prog.Funcs, 2)
}

func TestScenarioLoopBreakMutableAssign(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { let mut i = 0; let mut s = 0; loop { if i > read() { break s; } s = s + i; i = i + 1; } }`)
	require.Len(t, prog.Funcs, 1)
}

func TestScenarioStructElimination(t *testing.T) {
	prog := parse(t, `struct P { x: I64, y: I64 } fn main() -> I64 { let p = P { x: 2, y: 3 }; p.x + p.y + 1 }`)
	require.Len(t, prog.Structs, 1)
}

// Boundary cases (spec.md §8), checked at parse/type-check level.

func TestSixParametersAccepted(t *testing.T) {
	prog := parse(t, `fn six(a: I64, b: I64, c: I64, d: I64, e: I64, f: I64) -> I64 { a + b + c + d + e + f }
		fn main() -> I64 { six(1, 2, 3, 4, 5, 6) }`)
	require.Len(t, prog.Funcs[0].Params, 6)
}

func TestSevenParametersRejected(t *testing.T) {
	_, err := Parse(`fn seven(a: I64, b: I64, c: I64, d: I64, e: I64, f: I64, g: I64) -> I64 { a }
		fn main() -> I64 { 0 }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestNestedStructLiteralParses(t *testing.T) {
	prog := parse(t, `struct Inner { x: I64 }
		struct Outer { inner: Inner, y: I64 }
		fn main() -> I64 { let o = Outer { inner: Inner { x: 1 }, y: 2 }; o.inner.x + o.y }`)
	require.Len(t, prog.Structs, 2)
}

func TestIfConditionItselfAnIf(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { if (if true { false } else { true }) { 1 } else { 2 } }`)
	require.Len(t, prog.Funcs, 1)
}

func TestBreakInsideNestedLoopsParses(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { loop { loop { break 1; } break 2; } }`)
	require.Len(t, prog.Funcs, 1)
}

func TestReturnInsideLoopInsideIf(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { if true { loop { return 5; } } else { 0 } }`)
	require.Len(t, prog.Funcs, 1)
}

func TestAsmBlockPushPop(t *testing.T) {
	prog := parse(t, `fn main() -> I64 { asm { push %rax; pop %rax; }; 0 }`)
	require.Len(t, prog.Funcs, 1)
}

// Error cases (spec.md §7).

func TestUndeclaredVariableIsUserError(t *testing.T) {
	_, err := Parse(`fn main() -> I64 { y }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
	var ue *UserError
	require.ErrorAs(t, err, &ue)
}

func TestAssignToImmutableBindingIsUserError(t *testing.T) {
	_, err := Parse(`fn main() -> I64 { let x = 1; x = 2; x }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestBreakOutsideLoopIsUserError(t *testing.T) {
	_, err := Parse(`fn main() -> I64 { break 1; }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestMissingMainIsUserError(t *testing.T) {
	_, err := Parse(`fn foo() -> I64 { 1 }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestDuplicateStructFieldIsUserError(t *testing.T) {
	_, err := Parse(`struct P { x: I64, x: I64 } fn main() -> I64 { 0 }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestMissingStructFieldIsUserError(t *testing.T) {
	_, err := Parse(`struct P { x: I64, y: I64 } fn main() -> I64 { let p = P { x: 1 }; p.x }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestTypeMismatchInBinaryOpIsUserError(t *testing.T) {
	_, err := Parse(`fn main() -> I64 { let b = true; b + 1 }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestStructLiteralDisallowedBareInIfCondition(t *testing.T) {
	_, err := Parse(`struct P { x: I64 } fn main() -> I64 { if P { x: 1 } { 1 } else { 2 } }`, symtab.NewTable(), runtimeasm.NewLabels(symtab.NewTable()))
	require.Error(t, err)
}

func TestLoopWithoutBreakHasNeverType(t *testing.T) {
	tbl := symtab.NewTable()
	rt := runtimeasm.NewLabels(tbl)
	prog, err := Parse(`fn main() -> I64 { loop { print(1); } }`, tbl, rt)
	require.NoError(t, err)
	body := prog.Funcs[0].Body
	// the let-free single-statement body is the loop expression itself
	for body.Kind == ast.ESeq {
		body = body.B
	}
	require.Equal(t, types.Never, body.Type.Kind)
}
