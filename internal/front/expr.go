package front

import (
	"strconv"

	"github.com/loomlang/loomc/internal/ast"
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/types"
)

// parseBlock parses a `{ ... }` expression: push a scope, thread `let`
// bindings through their continuation exactly as ast.ELet expects (the
// let's B field IS the rest of the block, not a sibling statement), and
// pop the scope on exit.
func (p *parser) parseBlock() *ast.Expr {
	p.expect(TokLBrace)
	p.pushScope()
	body := p.parseBlockStmts()
	p.popScope()
	p.expect(TokRBrace)
	return body
}

func (p *parser) parseBlockStmts() *ast.Expr {
	if p.at(TokRBrace) {
		return unitExpr()
	}
	if p.at(TokLet) {
		return p.parseLet()
	}

	// A statement headed by if/loop/{ is "block-like": like Rust, it needs
	// no trailing `;` to separate it from the next statement (spec.md §8
	// scenario 5's loop body relies on exactly this: an if-statement
	// immediately followed by further statements with no semicolon between
	// them).
	blockLike := p.at(TokIf) || p.at(TokLoop) || p.at(TokLBrace)
	e := p.parseExpr()

	if p.at(TokSemi) {
		p.advance()
		if p.at(TokRBrace) {
			return &ast.Expr{Kind: ast.ESeq, A: e, B: unitExpr(), Type: types.Type{Kind: types.Unit}}
		}
		rest := p.parseBlockStmts()
		return &ast.Expr{Kind: ast.ESeq, A: e, B: rest, Type: rest.Type}
	}
	if blockLike && !p.at(TokRBrace) {
		rest := p.parseBlockStmts()
		return &ast.Expr{Kind: ast.ESeq, A: e, B: rest, Type: rest.Type}
	}
	return e
}

func (p *parser) parseLet() *ast.Expr {
	p.expect(TokLet)
	mutable := false
	if p.at(TokMut) {
		p.advance()
		mutable = true
	}
	nameTok := p.expect(TokIdent)

	var declared *types.Type
	if p.at(TokColon) {
		p.advance()
		t := p.parseType()
		declared = &t
	}
	p.expect(TokAssign)
	value := p.parseExpr()
	if declared != nil && !declared.Equal(value.Type) {
		panic(userErrorf(nameTok, "let %s: declared type %s does not match value type %s", nameTok.Val, declared, value.Type))
	}
	p.expect(TokSemi)

	sym := p.tbl.Fresh(nameTok.Val)
	p.bind(nameTok.Val, scopeEntry{Sym: sym, Type: value.Type, Mutable: mutable})

	var body *ast.Expr
	if p.at(TokRBrace) {
		body = unitExpr()
	} else {
		body = p.parseBlockStmts()
	}
	return &ast.Expr{Kind: ast.ELet, Sym: sym, Mutable: mutable, A: value, B: body, Type: body.Type}
}

func (p *parser) parseExpr() *ast.Expr { return p.parseBinary(1) }

var binOps = map[TokenKind]ast.BinOp{
	TokOrOr: ast.Or, TokAndAnd: ast.And,
	TokEq: ast.Eq, TokNe: ast.Ne, TokLt: ast.Lt, TokLe: ast.Le, TokGt: ast.Gt, TokGe: ast.Ge,
	TokPipe: ast.BitOr, TokCaret: ast.BitXor, TokAmp: ast.BitAnd,
	TokPlus: ast.Add, TokMinus: ast.Sub, TokStar: ast.Mul, TokSlash: ast.Div, TokPercent: ast.Mod,
}

func precedence(k TokenKind) int {
	switch k {
	case TokOrOr:
		return 1
	case TokAndAnd:
		return 2
	case TokEq, TokNe, TokLt, TokLe, TokGt, TokGe:
		return 3
	case TokPipe:
		return 4
	case TokCaret:
		return 5
	case TokAmp:
		return 6
	case TokPlus, TokMinus:
		return 7
	case TokStar, TokSlash, TokPercent:
		return 8
	}
	return 0
}

func (p *parser) parseBinary(minPrec int) *ast.Expr {
	left := p.parseUnary()
	for {
		prec := precedence(p.peek().Kind)
		if prec < minPrec {
			return left
		}
		opTok := p.advance()
		right := p.parseBinary(prec + 1)
		op := binOps[opTok.Kind]
		resultType := p.binOpType(opTok, op, left.Type, right.Type)
		left = &ast.Expr{Kind: ast.EBinary, Bin: op, A: left, B: right, Type: resultType}
	}
}

func (p *parser) binOpType(tok Token, op ast.BinOp, lhs, rhs types.Type) types.Type {
	intT := types.Type{Kind: types.Int}
	boolT := types.Type{Kind: types.Bool}
	switch op {
	case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.Mod, ast.BitAnd, ast.BitOr, ast.BitXor:
		if lhs.Kind != types.Int || rhs.Kind != types.Int {
			panic(userErrorf(tok, "operator %s requires I64 operands, got %s and %s", tok.Kind, lhs, rhs))
		}
		return intT
	case ast.And, ast.Or:
		if lhs.Kind != types.Bool || rhs.Kind != types.Bool {
			panic(userErrorf(tok, "operator %s requires Bool operands, got %s and %s", tok.Kind, lhs, rhs))
		}
		return boolT
	case ast.Lt, ast.Le, ast.Gt, ast.Ge:
		if lhs.Kind != types.Int || rhs.Kind != types.Int {
			panic(userErrorf(tok, "operator %s requires I64 operands, got %s and %s", tok.Kind, lhs, rhs))
		}
		return boolT
	case ast.Eq, ast.Ne:
		if !lhs.Equal(rhs) || (lhs.Kind != types.Int && lhs.Kind != types.Bool) {
			panic(userErrorf(tok, "operator %s requires two operands of the same scalar type, got %s and %s", tok.Kind, lhs, rhs))
		}
		return boolT
	}
	panic(userErrorf(tok, "internal: unhandled operator"))
}

func (p *parser) parseUnary() *ast.Expr {
	if p.at(TokMinus) {
		tok := p.advance()
		operand := p.parseUnary()
		if operand.Type.Kind != types.Int {
			panic(userErrorf(tok, "unary - requires an I64 operand, got %s", operand.Type))
		}
		return &ast.Expr{Kind: ast.EUnary, Un: ast.Neg, A: operand, Type: operand.Type}
	}
	if p.at(TokBang) {
		tok := p.advance()
		operand := p.parseUnary()
		if operand.Type.Kind != types.Bool {
			panic(userErrorf(tok, "unary ! requires a Bool operand, got %s", operand.Type))
		}
		return &ast.Expr{Kind: ast.EUnary, Un: ast.Not, A: operand, Type: operand.Type}
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *parser) parsePostfix(e *ast.Expr) *ast.Expr {
	for {
		switch p.peek().Kind {
		case TokDot:
			p.advance()
			fieldTok := p.expect(TokIdent)
			if e.Type.Kind != types.Struct || e.Type.Def == nil {
				panic(userErrorf(fieldTok, "field access on non-struct type %s", e.Type))
			}
			ft, ok := fieldType(e.Type.Def, fieldTok.Val)
			if !ok {
				panic(userErrorf(fieldTok, "unknown field %q on struct %s", fieldTok.Val, e.Type))
			}
			e = &ast.Expr{Kind: ast.EFieldAccess, A: e, Field: fieldTok.Val, Type: ft}

		case TokLParen:
			if e.Type.Kind != types.Fn {
				panic(userErrorf(p.peek(), "call target is not a function (%s)", e.Type))
			}
			args := p.parseArgs()
			if len(args) != len(e.Type.Params) {
				panic(userErrorf(p.peek(), "call expects %d arguments, got %d", len(e.Type.Params), len(args)))
			}
			for i, a := range args {
				if !a.Type.Equal(e.Type.Params[i]) {
					panic(userErrorf(p.peek(), "argument %d: expected %s, got %s", i+1, e.Type.Params[i], a.Type))
				}
			}
			result := types.Type{Kind: types.Unit}
			if e.Type.Result != nil {
				result = *e.Type.Result
			}
			e = &ast.Expr{Kind: ast.EApply, Fn: e, Args: args, Type: result}

		default:
			return e
		}
	}
}

func fieldType(def *types.StructDef, name string) (types.Type, bool) {
	for _, f := range def.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return types.Type{}, false
}

func (p *parser) parseArgs() []*ast.Expr {
	p.expect(TokLParen)
	var args []*ast.Expr
	for !p.at(TokRParen) {
		args = append(args, p.parseExpr())
		if p.at(TokComma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(TokRParen)
	return args
}

func (p *parser) parsePrimary() *ast.Expr {
	tok := p.peek()
	switch tok.Kind {
	case TokInt:
		p.advance()
		v, err := strconv.ParseInt(tok.Val, 10, 64)
		if err != nil {
			panic(userErrorf(tok, "integer literal %q out of range", tok.Val))
		}
		return &ast.Expr{Kind: ast.EAtomLit, Lit: ast.Literal{Kind: ast.LitInt, Int: v}, Type: types.Type{Kind: types.Int}}

	case TokTrue, TokFalse:
		p.advance()
		return &ast.Expr{Kind: ast.EAtomLit, Lit: ast.Literal{Kind: ast.LitBool, Bool: tok.Kind == TokTrue}, Type: types.Type{Kind: types.Bool}}

	case TokLParen:
		p.advance()
		e := p.parseExpr()
		p.expect(TokRParen)
		return e

	case TokLBrace:
		return p.parseBlock()

	case TokIf:
		return p.parseIf()

	case TokLoop:
		return p.parseLoop()

	case TokBreak:
		return p.parseBreak()

	case TokContinue:
		p.advance()
		if len(p.loops) == 0 {
			panic(userErrorf(tok, "continue outside of a loop"))
		}
		return &ast.Expr{Kind: ast.EContinue, Type: types.Type{Kind: types.Never}}

	case TokReturn:
		return p.parseReturn()

	case TokAsm:
		return p.parseAsmBlock()

	case TokIdent:
		return p.parseIdentOrStructLit()

	default:
		panic(userErrorf(tok, "unexpected token %s in expression", tok.Kind))
	}
}

func (p *parser) parseIdentOrStructLit() *ast.Expr {
	nameTok := p.expect(TokIdent)

	if sym, ok := p.structSyms[nameTok.Val]; ok && p.at(TokLBrace) {
		return p.parseStructLit(nameTok, sym)
	}

	if e, ok := p.lookup(nameTok.Val); ok {
		if p.at(TokAssign) {
			return p.parseAssign(nameTok, e)
		}
		return &ast.Expr{Kind: ast.EVar, Sym: e.Sym, Type: e.Type}
	}
	if fn, ok := p.funcs[nameTok.Val]; ok {
		fnType := types.Type{Kind: types.Fn, Result: resultPtr(fn.Result)}
		for _, pr := range fn.Params {
			fnType.Params = append(fnType.Params, pr.Type)
		}
		return &ast.Expr{Kind: ast.EVar, Sym: fn.Sym, Type: fnType}
	}
	panic(userErrorf(nameTok, "undeclared name %q", nameTok.Val))
}

func resultPtr(t types.Type) *types.Type { r := t; return &r }

func (p *parser) parseAssign(nameTok Token, target scopeEntry) *ast.Expr {
	p.advance() // '='
	if !target.Mutable {
		panic(userErrorf(nameTok, "cannot assign to immutable binding %q", nameTok.Val))
	}
	value := p.parseExpr()
	if !value.Type.Equal(target.Type) {
		panic(userErrorf(nameTok, "assignment to %s: expected %s, got %s", nameTok.Val, target.Type, value.Type))
	}
	return &ast.Expr{Kind: ast.EAssign, Sym: target.Sym, A: value, Type: types.Type{Kind: types.Unit}}
}

func (p *parser) parseStructLit(nameTok Token, sym symtab.UniqueSym) *ast.Expr {
	def := p.structDefs[sym]
	p.expect(TokLBrace)
	seen := map[string]bool{}
	var fields []ast.StructFieldInit
	for !p.at(TokRBrace) {
		fieldTok := p.expect(TokIdent)
		if seen[fieldTok.Val] {
			panic(userErrorf(fieldTok, "duplicate field %q in struct literal", fieldTok.Val))
		}
		ft, ok := fieldType(def, fieldTok.Val)
		if !ok {
			panic(userErrorf(fieldTok, "unknown field %q on struct %s", fieldTok.Val, nameTok.Val))
		}
		seen[fieldTok.Val] = true
		p.expect(TokColon)
		value := p.parseExpr()
		if !value.Type.Equal(ft) {
			panic(userErrorf(fieldTok, "field %s: expected %s, got %s", fieldTok.Val, ft, value.Type))
		}
		fields = append(fields, ast.StructFieldInit{Field: fieldTok.Val, Value: value})
		if p.at(TokComma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(TokRBrace)
	for _, f := range def.Fields {
		if !seen[f.Name] {
			panic(userErrorf(nameTok, "struct literal %s missing field %q", nameTok.Val, f.Name))
		}
	}
	return &ast.Expr{
		Kind:       ast.EStructLit,
		StructName: sym,
		Fields:     fields,
		Type:       types.Type{Kind: types.Struct, Name: sym, Def: def},
	}
}

// parseIf parses `if cond { then } [else (if-expr | { block })]`. The
// condition is parsed by parseCondExpr, which rejects a bare struct literal
// at the start of the condition so `if x {` isn't misread as `if (x{...})`;
// struct literals deeper inside the condition are not rejected.
func (p *parser) parseIf() *ast.Expr {
	tok := p.expect(TokIf)
	cond := p.parseCondExpr()
	if cond.Type.Kind != types.Bool {
		panic(userErrorf(tok, "if condition must be Bool, got %s", cond.Type))
	}
	then := p.parseBlock()

	var els *ast.Expr
	if p.at(TokElse) {
		p.advance()
		if p.at(TokIf) {
			els = p.parseIf()
		} else {
			els = p.parseBlock()
		}
	} else {
		els = unitExpr()
	}

	resultType := then.Type
	switch {
	case then.Type.Equal(els.Type):
		resultType = then.Type
	case then.Type.Kind == types.Never:
		resultType = els.Type
	case els.Type.Kind == types.Never:
		resultType = then.Type
	default:
		panic(userErrorf(tok, "if branches have mismatched types %s and %s", then.Type, els.Type))
	}
	return &ast.Expr{Kind: ast.EIf, A: cond, B: then, C: els, Type: resultType}
}

// parseCondExpr disallows a bare struct literal at the top of a condition,
// since `if P { ... } { ... }` would otherwise be ambiguous between a
// struct literal and the if's own then-block.
func (p *parser) parseCondExpr() *ast.Expr {
	if p.at(TokIdent) {
		if _, ok := p.structSyms[p.peek().Val]; ok && p.peekAt(1).Kind == TokLBrace {
			panic(userErrorf(p.peek(), "struct literal not allowed directly in an if/loop condition; parenthesize it"))
		}
	}
	return p.parseExpr()
}

func (p *parser) parseLoop() *ast.Expr {
	p.expect(TokLoop)
	p.loops = append(p.loops, &loopCtx{})
	body := p.parseBlock()
	ctx := p.loops[len(p.loops)-1]
	p.loops = p.loops[:len(p.loops)-1]

	loopType := types.Type{Kind: types.Never}
	if ctx.sawBreak {
		loopType = ctx.breakType
	}
	return &ast.Expr{Kind: ast.ELoop, A: body, Type: loopType}
}

func (p *parser) parseBreak() *ast.Expr {
	tok := p.expect(TokBreak)
	if len(p.loops) == 0 {
		panic(userErrorf(tok, "break outside of a loop"))
	}
	ctx := p.loops[len(p.loops)-1]

	var value *ast.Expr
	valType := types.Type{Kind: types.Unit}
	if !p.at(TokSemi) && !p.at(TokRBrace) {
		value = p.parseExpr()
		valType = value.Type
	}
	if !ctx.sawBreak {
		ctx.sawBreak = true
		ctx.breakType = valType
	} else if !ctx.breakType.Equal(valType) {
		panic(userErrorf(tok, "break value type %s does not match this loop's earlier break type %s", valType, ctx.breakType))
	}
	return &ast.Expr{Kind: ast.EBreak, A: value, Type: types.Type{Kind: types.Never}}
}

func (p *parser) parseReturn() *ast.Expr {
	tok := p.expect(TokReturn)
	var value *ast.Expr
	valType := types.Type{Kind: types.Unit}
	if !p.at(TokSemi) && !p.at(TokRBrace) {
		value = p.parseExpr()
		valType = value.Type
	}
	if !valType.Equal(p.curFuncResult) {
		panic(userErrorf(tok, "return value type %s does not match function result type %s", valType, p.curFuncResult))
	}
	return &ast.Expr{Kind: ast.EReturn, A: value, Type: types.Type{Kind: types.Never}}
}

// parseAsmBlock parses a source-level inline-asm escape: a sequence of
// `mnemonic operand, operand, ...;` lines, each operand either a register
// (`%rax`), an immediate (`$42`), or a bound variable reference. Lowered
// straight into the same ast.AsmInstr shape internal/runtimeasm builds the
// exit/print/read blocks from (spec.md §1's "inline assembly escapes").
func (p *parser) parseAsmBlock() *ast.Expr {
	p.expect(TokAsm)
	p.expect(TokLBrace)
	var instrs []ast.AsmInstr
	for !p.at(TokRBrace) {
		mnemonic := p.expect(TokIdent)
		var operands []ast.AsmOperand
		for !p.at(TokSemi) {
			operands = append(operands, p.parseAsmOperand())
			if p.at(TokComma) {
				p.advance()
			}
		}
		p.expect(TokSemi)
		instrs = append(instrs, ast.AsmInstr{Mnemonic: mnemonic.Val, Operands: operands})
	}
	p.expect(TokRBrace)
	return &ast.Expr{Kind: ast.EAsm, Asm: instrs, Type: types.Type{Kind: types.Unit}}
}

func (p *parser) parseAsmOperand() ast.AsmOperand {
	switch {
	case p.at(TokPercent):
		p.advance()
		reg := p.expect(TokIdent)
		return ast.AsmOperand{Kind: ast.AsmReg, Reg: reg.Val}
	case p.at(TokDollar):
		p.advance()
		tok := p.expect(TokInt)
		v, err := strconv.ParseInt(tok.Val, 10, 64)
		if err != nil {
			panic(userErrorf(tok, "immediate %q out of range", tok.Val))
		}
		return ast.AsmOperand{Kind: ast.AsmImm, Imm: v}
	default:
		tok := p.expect(TokIdent)
		e, ok := p.lookup(tok.Val)
		if !ok {
			panic(userErrorf(tok, "undeclared name %q in asm operand", tok.Val))
		}
		return ast.AsmOperand{Kind: ast.AsmSym, Sym: e.Sym}
	}
}
