// Package parser turns a Nova token stream into the internal/ast tree.
//
// It is recursive descent with precedence climbing for expressions,
// grounded in the teacher's pkg/parser/parser.go two-token lookahead
// shape (curTok/peekTok, an accumulated errors slice, a single New(src)
// entry point returning a *Parser) — generalized from smog's three-tier
// unary/binary/keyword message precedence to the fuller Kotlin-flavored
// expression grammar spec.md §4.3 implies:
//
//	elvis        := pipeline ("?:" pipeline)*
//	pipeline     := or ("|>" call)*
//	or           := and ("||" and)*
//	and          := equality ("&&" equality)*
//	equality     := comparison (("=="|"!=") comparison)*
//	comparison   := range ((("<"|">"|"<="|">="|"is"|"in"|"as") range)*   -- chained if >1
//	range        := additive ((".."|"..<") additive)?
//	additive     := multiplicative (("+"|"-") multiplicative)*
//	multiplicative := unary (("*"|"/"|"%") unary)*
//	unary        := ("+"|"-"|"!"|"++"|"--")? postfix
//	postfix      := primary ("."|"?."|"("|"["|"?["|"++"|"--"|"?"|"::" ...)*
//	primary      := literal | identifier | "(" expr ")" | lambda | if | when
//	                | try | listLit | mapLit | scopeShorthand-receiver-form
//
// Statements wrap this expression grammar with the declaration forms
// (val/var/fun/class/enum/interface/object/annotation class) and
// control statements (for/while/return/break/continue/throw/guard let)
// that spec.md §4.4 names.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/lexer"
)

// Parser holds the two-token lookahead window and accumulated errors.
// It is stateful and single-use, same as the teacher's. Tokens are
// pulled from the lexer into toks lazily and never discarded, so a
// speculative parse (destructuring-assignment detection, lambda
// parameter-list lookahead) can snapshot and roll back via mark/reset
// without losing already-scanned tokens the plain two-field lookahead
// the teacher uses has no way to replay.
type Parser struct {
	l       *lexer.Lexer
	toks    []lexer.Token
	pos     int
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New primes a Parser with the first two tokens of src.
func New(src string) *Parser {
	p := &Parser{l: lexer.New(src)}
	p.toks = append(p.toks, p.l.NextToken(), p.l.NextToken())
	p.curTok = p.toks[0]
	p.peekTok = p.toks[1]
	return p
}

func (p *Parser) nextToken() {
	p.pos++
	for len(p.toks) <= p.pos+1 {
		p.toks = append(p.toks, p.l.NextToken())
	}
	p.curTok = p.toks[p.pos]
	p.peekTok = p.toks[p.pos+1]
}

// parserMark is a snapshot point for speculative parsing.
type parserMark struct{ pos int }

func (p *Parser) mark() parserMark { return parserMark{p.pos} }

func (p *Parser) reset(m parserMark) {
	p.pos = m.pos
	p.curTok = p.toks[p.pos]
	p.peekTok = p.toks[p.pos+1]
}

func (p *Parser) addError(format string, a ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.curTok.Line, fmt.Sprintf(format, a...)))
}

// Errors returns accumulated parse errors, if any.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) curIs(tt lexer.TokenType) bool  { return p.curTok.Type == tt }
func (p *Parser) peekIs(tt lexer.TokenType) bool { return p.peekTok.Type == tt }

func (p *Parser) expect(tt lexer.TokenType, what string) bool {
	if p.peekIs(tt) {
		p.nextToken()
		return true
	}
	p.addError("expected %s, got %q", what, p.peekTok.Literal)
	return false
}

// skipTerminators consumes statement-separating newlines-as-semicolons;
// Nova's lexer doesn't emit newline tokens, so this only needs to eat
// any literal ';' left between statements.
func (p *Parser) skipTerminators() {
	for p.curIs(lexer.TokenSemicolon) {
		p.nextToken()
	}
}

// Parse parses a whole compilation unit.
func Parse(src string) (*ast.Program, error) {
	return New(src).Parse()
}

func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for !p.curIs(lexer.TokenEOF) {
		p.skipTerminators()
		if p.curIs(lexer.TokenEOF) {
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.nextToken()
	}
	if len(p.errors) > 0 {
		return prog, fmt.Errorf("parse errors: %s", strings.Join(p.errors, "; "))
	}
	return prog, nil
}

// ---------------------------------------------------------------------
// statements
// ---------------------------------------------------------------------

func (p *Parser) parseStatement() ast.Statement {
	switch p.curTok.Type {
	case lexer.TokenAt:
		return p.parseAnnotatedStatement()
	case lexer.TokenVal:
		return p.parseValDecl()
	case lexer.TokenVar:
		return p.parseVarDecl()
	case lexer.TokenFun:
		return p.parseFunDecl(nil, "")
	case lexer.TokenClass, lexer.TokenAbstract, lexer.TokenSealed, lexer.TokenData:
		return p.parseClassDeclStatement(nil)
	case lexer.TokenEnum:
		return p.parseEnumDecl(nil)
	case lexer.TokenInterface:
		return p.parseInterfaceDecl()
	case lexer.TokenObject:
		return p.parseObjectDecl()
	case lexer.TokenAnnotation:
		return p.parseAnnotationClassDecl()
	case lexer.TokenFor:
		return p.parseForStmt()
	case lexer.TokenWhile:
		return p.parseWhileStmt()
	case lexer.TokenReturn:
		return p.parseReturnStmt()
	case lexer.TokenBreak:
		st := &ast.BreakStmt{Line: p.curTok.Line}
		return st
	case lexer.TokenContinue:
		st := &ast.ContinueStmt{Line: p.curTok.Line}
		return st
	case lexer.TokenThrow:
		return p.parseThrowStmt()
	case lexer.TokenGuard:
		return p.parseGuardLet()
	case lexer.TokenLParen:
		if st := p.tryParseDestructuringAssign(); st != nil {
			return st
		}
	}
	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil
	}
	if p.peekIs(lexer.TokenAssign) || isCompoundAssignPeek(p.peekTok.Type) {
		return p.finishAssign(expr)
	}
	return &ast.ExpressionStatement{Expr: expr, Line: exprLine(expr)}
}

func isCompoundAssignPeek(tt lexer.TokenType) bool {
	switch tt {
	case lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq, lexer.TokenSlashEq, lexer.TokenPercentEq, lexer.TokenElvisEq:
		return true
	}
	return false
}

func (p *Parser) finishAssign(target ast.Expression) ast.Statement {
	line := exprLine(target)
	if p.peekIs(lexer.TokenAssign) {
		p.nextToken()
		p.nextToken()
		val := p.parseExpression(precLowest)
		return &ast.AssignStmt{Target: target, Value: val, Line: line}
	}
	op := compoundOp(p.peekTok.Type)
	p.nextToken()
	p.nextToken()
	val := p.parseExpression(precLowest)
	return &ast.CompoundAssign{Target: target, Op: op, Value: val, Line: line}
}

func compoundOp(tt lexer.TokenType) string {
	switch tt {
	case lexer.TokenPlusEq:
		return "+="
	case lexer.TokenMinusEq:
		return "-="
	case lexer.TokenStarEq:
		return "*="
	case lexer.TokenSlashEq:
		return "/="
	case lexer.TokenPercentEq:
		return "%="
	case lexer.TokenElvisEq:
		return "??="
	}
	return "?="
}

// tryParseDestructuringAssign handles `(a, b) = pair` where a/b already
// exist — distinguished from a parenthesized expression by a lookahead
// scan for `) =` after a comma-separated identifier list.
func (p *Parser) tryParseDestructuringAssign() ast.Statement {
	m := p.mark()
	line := p.curTok.Line
	p.nextToken()
	var names []string
	for {
		if !p.curIs(lexer.TokenIdentifier) && !p.curIs(lexer.TokenUnderscore) {
			p.reset(m)
			return nil
		}
		names = append(names, p.curTok.Literal)
		if p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	if !p.peekIs(lexer.TokenRParen) {
		p.reset(m)
		return nil
	}
	p.nextToken()
	if !p.peekIs(lexer.TokenAssign) {
		p.reset(m)
		return nil
	}
	p.nextToken()
	p.nextToken()
	val := p.parseExpression(precLowest)
	return &ast.Destructuring{Names: names, Value: val, Line: line}
}

func (p *Parser) parseAnnotatedStatement() ast.Statement {
	anns := p.parseAnnotations()
	switch p.curTok.Type {
	case lexer.TokenClass, lexer.TokenAbstract, lexer.TokenSealed, lexer.TokenData:
		return p.parseClassDeclStatement(anns)
	case lexer.TokenEnum:
		return p.parseEnumDecl(anns)
	case lexer.TokenFun:
		return p.parseFunDecl(anns, "")
	}
	p.addError("expected a declaration after annotations, got %q", p.curTok.Literal)
	return nil
}

func (p *Parser) parseAnnotations() []ast.Annotation {
	var out []ast.Annotation
	for p.curIs(lexer.TokenAt) {
		p.nextToken()
		name := p.curTok.Literal
		var args []ast.Expression
		if p.peekIs(lexer.TokenLParen) {
			p.nextToken()
			args = p.parseCallArgs(nil)
		}
		out = append(out, ast.Annotation{Name: name, Args: args})
		p.nextToken()
		for p.curIs(lexer.TokenSemicolon) {
			p.nextToken()
		}
	}
	return out
}

func (p *Parser) parseValDecl() ast.Statement {
	line := p.curTok.Line
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		names := p.parseDestructureNames()
		p.expect(lexer.TokenAssign, "'='")
		p.nextToken()
		val := p.parseExpression(precLowest)
		return &ast.ValDecl{Destructure: names, Value: val, Line: line}
	}
	p.expect(lexer.TokenIdentifier, "identifier")
	name := p.curTok.Literal
	p.skipOptionalTypeAnnotation()
	p.expect(lexer.TokenAssign, "'='")
	p.nextToken()
	val := p.parseExpression(precLowest)
	return &ast.ValDecl{Name: name, Value: val, Line: line}
}

func (p *Parser) parseVarDecl() ast.Statement {
	line := p.curTok.Line
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		names := p.parseDestructureNames()
		p.expect(lexer.TokenAssign, "'='")
		p.nextToken()
		val := p.parseExpression(precLowest)
		return &ast.VarDecl{Destructure: names, Value: val, Line: line}
	}
	p.expect(lexer.TokenIdentifier, "identifier")
	name := p.curTok.Literal
	p.skipOptionalTypeAnnotation()
	var val ast.Expression
	if p.peekIs(lexer.TokenAssign) {
		p.nextToken()
		p.nextToken()
		val = p.parseExpression(precLowest)
	}
	return &ast.VarDecl{Name: name, Value: val, Line: line}
}

func (p *Parser) parseDestructureNames() []string {
	var names []string
	p.nextToken()
	for {
		if p.curIs(lexer.TokenUnderscore) {
			names = append(names, "_")
		} else {
			names = append(names, p.curTok.Literal)
		}
		if p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	p.expect(lexer.TokenRParen, "')'")
	return names
}

// skipOptionalTypeAnnotation consumes a Kotlin-style `: Type` suffix on
// a binding; Nova is dynamically typed (spec.md §2), so the type itself
// is discarded — it exists in source only for readability/interop hints.
func (p *Parser) skipOptionalTypeAnnotation() {
	if p.peekIs(lexer.TokenColon) {
		p.nextToken()
		p.nextToken()
		p.skipTypeExpr()
	}
}

func (p *Parser) skipTypeExpr() {
	for p.peekIs(lexer.TokenDot) {
		p.nextToken()
		p.nextToken()
	}
	if p.peekIs(lexer.TokenQuestion) {
		p.nextToken()
	}
	if p.peekIs(lexer.TokenLt) {
		depth := 0
		for {
			p.nextToken()
			if p.curIs(lexer.TokenLt) {
				depth++
			} else if p.curIs(lexer.TokenGt) {
				depth--
				if depth == 0 {
					break
				}
			}
			if p.curIs(lexer.TokenEOF) {
				break
			}
		}
	}
}

func (p *Parser) parseForStmt() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenLParen, "'('")
	p.nextToken()
	var names []string
	if p.curIs(lexer.TokenLParen) {
		names = p.parseDestructureNames()
	} else {
		names = []string{p.curTok.Literal}
	}
	p.expect(lexer.TokenIn, "'in'")
	p.nextToken()
	iterable := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen, "')'")
	p.expect(lexer.TokenLBrace, "'{'")
	body := p.parseBlockStatements()
	return &ast.ForStmt{VarNames: names, Iterable: iterable, Body: body, Line: line}
}

func (p *Parser) parseWhileStmt() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenLParen, "'('")
	p.nextToken()
	cond := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen, "')'")
	p.expect(lexer.TokenLBrace, "'{'")
	body := p.parseBlockStatements()
	return &ast.WhileStmt{Cond: cond, Body: body, Line: line}
}

func (p *Parser) parseReturnStmt() ast.Statement {
	line := p.curTok.Line
	if p.peekIs(lexer.TokenRBrace) || p.peekIs(lexer.TokenSemicolon) || p.peekIs(lexer.TokenEOF) {
		return &ast.ReturnStmt{Line: line}
	}
	p.nextToken()
	val := p.parseExpression(precLowest)
	return &ast.ReturnStmt{Value: val, Line: line}
}

func (p *Parser) parseThrowStmt() ast.Statement {
	line := p.curTok.Line
	p.nextToken()
	val := p.parseExpression(precLowest)
	return &ast.ThrowStmt{Value: val, Line: line}
}

// parseBlockStatements parses statements up to (and consuming) a closing
// '}'; curTok must be '{' on entry.
func (p *Parser) parseBlockStatements() []ast.Statement {
	var body []ast.Statement
	p.nextToken()
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		p.skipTerminators()
		if p.curIs(lexer.TokenRBrace) {
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			body = append(body, stmt)
		}
		p.nextToken()
	}
	return body
}

// ---------------------------------------------------------------------
// declarations
// ---------------------------------------------------------------------

func (p *Parser) parseFunDecl(anns []ast.Annotation, visibility string) *ast.FunDecl {
	line := p.curTok.Line
	inline := false
	if p.curIs(lexer.TokenInline) {
		inline = true
		p.nextToken()
	}
	if !p.curIs(lexer.TokenFun) {
		p.expect(lexer.TokenFun, "'fun'")
	}
	var reified []string
	if p.peekIs(lexer.TokenLt) {
		reified = p.parseReifiedParams()
	}
	p.expect(lexer.TokenIdentifier, "function name")
	name := p.curTok.Literal
	p.expect(lexer.TokenLParen, "'('")
	params := p.parseParamList()
	p.skipOptionalTypeAnnotation()
	var body []ast.Statement
	if p.peekIs(lexer.TokenAssign) {
		p.nextToken()
		p.nextToken()
		expr := p.parseExpression(precLowest)
		body = []ast.Statement{&ast.ReturnStmt{Value: expr, Line: line}}
	} else if p.peekIs(lexer.TokenLBrace) {
		p.nextToken()
		body = p.parseBlockStatements()
	}
	return &ast.FunDecl{Name: name, Params: params, Body: body, Annotations: anns, Inline: inline, Reified: reified, Visibility: visOrDefault(visibility), Line: line}
}

func visOrDefault(v string) string {
	if v == "" {
		return "public"
	}
	return v
}

func (p *Parser) parseReifiedParams() []string {
	var out []string
	p.nextToken()
	for {
		p.nextToken()
		if p.curIs(lexer.TokenReified) {
			p.nextToken()
		}
		out = append(out, p.curTok.Literal)
		if p.peekIs(lexer.TokenComma) {
			p.nextToken()
			continue
		}
		break
	}
	p.expect(lexer.TokenGt, "'>'")
	return out
}

// parseParamList parses a parenthesized parameter list; curTok is '('
// on entry, and ')' is the current token on return.
func (p *Parser) parseParamList() []ast.Param {
	var params []ast.Param
	if p.peekIs(lexer.TokenRParen) {
		p.nextToken()
		return params
	}
	p.nextToken()
	for {
		vararg := false
		if p.curIs(lexer.TokenVal) || p.curIs(lexer.TokenVar) {
			p.nextToken() // primary-constructor property marker
		}
		if p.curIs(lexer.TokenVararg) {
			vararg = true
			p.nextToken()
		}
		name := p.curTok.Literal
		p.skipOptionalTypeAnnotation()
		var def ast.Expression
		if p.peekIs(lexer.TokenAssign) {
			p.nextToken()
			p.nextToken()
			def = p.parseExpression(precComma)
		}
		params = append(params, ast.Param{Name: name, Default: def, Vararg: vararg})
		if p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	p.expect(lexer.TokenRParen, "')'")
	return params
}

func (p *Parser) parseClassDeclStatement(anns []ast.Annotation) ast.Statement {
	line := p.curTok.Line
	abstract, sealed, data := false, false, false
	for {
		switch p.curTok.Type {
		case lexer.TokenAbstract:
			abstract = true
			p.nextToken()
			continue
		case lexer.TokenSealed:
			sealed = true
			p.nextToken()
			continue
		case lexer.TokenData:
			data = true
			p.nextToken()
			continue
		}
		break
	}
	if !p.curIs(lexer.TokenClass) {
		p.addError("expected 'class', got %q", p.curTok.Literal)
	}
	p.expect(lexer.TokenIdentifier, "class name")
	name := p.curTok.Literal

	var primaryParams []ast.Param
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		primaryParams = p.parseParamList()
	}

	var superClass string
	var superArgs []ast.Expression
	var interfaces []string
	if p.peekIs(lexer.TokenColon) {
		p.nextToken()
		p.nextToken()
		first := p.curTok.Literal
		if p.peekIs(lexer.TokenLParen) {
			superClass = first
			p.nextToken()
			superArgs = p.parseCallArgs(nil)
		} else {
			interfaces = append(interfaces, first)
		}
		for p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			interfaces = append(interfaces, p.curTok.Literal)
		}
	}

	cd := &ast.ClassDecl{Name: name, Abstract: abstract, Sealed: sealed, Data: data, PrimaryParams: primaryParams,
		SuperClass: superClass, SuperArgs: superArgs, Interfaces: interfaces, Annotations: anns, Line: line}

	if p.peekIs(lexer.TokenLBrace) {
		p.nextToken()
		p.parseClassBody(cd)
	}
	return cd
}

// parseClassBody fills in Members/Methods/SecondaryCtors/Companion*
// from a class's '{'...'}' body; curTok is '{' on entry and '}' on
// return.
func (p *Parser) parseClassBody(cd *ast.ClassDecl) {
	p.nextToken()
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		p.skipTerminators()
		if p.curIs(lexer.TokenRBrace) {
			break
		}
		var anns []ast.Annotation
		if p.curIs(lexer.TokenAt) {
			anns = p.parseAnnotations()
		}
		vis := p.consumeVisibility()
		switch p.curTok.Type {
		case lexer.TokenVal:
			cd.Members = append(cd.Members, ast.ClassMember{Property: p.parsePropertyDecl(false, vis)})
		case lexer.TokenVar:
			cd.Members = append(cd.Members, ast.ClassMember{Property: p.parsePropertyDecl(true, vis)})
		case lexer.TokenFun, lexer.TokenInline:
			cd.Methods = append(cd.Methods, p.parseFunDecl(anns, vis))
		case lexer.TokenInit:
			cd.Members = append(cd.Members, ast.ClassMember{Init: p.parseInitBlock()})
		case lexer.TokenIdentifier:
			if p.curTok.Literal == "constructor" {
				cd.SecondaryCtors = append(cd.SecondaryCtors, p.parseSecondaryCtor())
			}
		case lexer.TokenCompanion:
			p.parseCompanionObject(cd)
		}
		p.nextToken()
	}
}

func (p *Parser) consumeVisibility() string {
	switch p.curTok.Type {
	case lexer.TokenPrivate:
		p.nextToken()
		return "private"
	case lexer.TokenProtected:
		p.nextToken()
		return "protected"
	case lexer.TokenPublic:
		p.nextToken()
		return "public"
	}
	return ""
}

func (p *Parser) parsePropertyDecl(mutable bool, vis string) *ast.PropertyDecl {
	line := p.curTok.Line
	p.expect(lexer.TokenIdentifier, "property name")
	name := p.curTok.Literal
	p.skipOptionalTypeAnnotation()
	var init ast.Expression
	if p.peekIs(lexer.TokenAssign) {
		p.nextToken()
		p.nextToken()
		init = p.parseExpression(precLowest)
	}
	return &ast.PropertyDecl{Name: name, Mutable: mutable, Init: init, Visibility: visOrDefault(vis), Line: line}
}

func (p *Parser) parseInitBlock() *ast.InitBlock {
	line := p.curTok.Line
	p.expect(lexer.TokenLBrace, "'{'")
	body := p.parseBlockStatements()
	return &ast.InitBlock{Body: body, Line: line}
}

func (p *Parser) parseSecondaryCtor() ast.SecondaryCtor {
	line := p.curTok.Line
	p.expect(lexer.TokenLParen, "'('")
	params := p.parseParamList()
	var delegate []ast.Expression
	if p.peekIs(lexer.TokenColon) {
		p.nextToken()
		p.nextToken() // "this"
		p.expect(lexer.TokenLParen, "'('")
		delegate = p.parseCallArgs(nil)
	}
	var body []ast.Statement
	if p.peekIs(lexer.TokenLBrace) {
		p.nextToken()
		body = p.parseBlockStatements()
	}
	return ast.SecondaryCtor{Params: params, DelegateArgs: delegate, Body: body, Line: line}
}

func (p *Parser) parseCompanionObject(cd *ast.ClassDecl) {
	if p.peekIs(lexer.TokenIdentifier) {
		p.nextToken() // optional companion name, discarded
	}
	p.expect(lexer.TokenLBrace, "'{'")
	p.nextToken()
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		p.skipTerminators()
		if p.curIs(lexer.TokenRBrace) {
			break
		}
		vis := p.consumeVisibility()
		switch p.curTok.Type {
		case lexer.TokenVal:
			cd.CompanionMembers = append(cd.CompanionMembers, ast.ClassMember{Property: p.parsePropertyDecl(false, vis)})
		case lexer.TokenVar:
			cd.CompanionMembers = append(cd.CompanionMembers, ast.ClassMember{Property: p.parsePropertyDecl(true, vis)})
		case lexer.TokenFun:
			cd.CompanionMethods = append(cd.CompanionMethods, p.parseFunDecl(nil, vis))
		}
		p.nextToken()
	}
}

func (p *Parser) parseEnumDecl(anns []ast.Annotation) ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenIdentifier, "'class'/identifier")
	if p.curTok.Literal == "class" {
		p.expect(lexer.TokenIdentifier, "enum name")
	}
	name := p.curTok.Literal
	var ctorParams []ast.Param
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		ctorParams = p.parseParamList()
	}
	var interfaces []string
	if p.peekIs(lexer.TokenColon) {
		p.nextToken()
		p.nextToken()
		interfaces = append(interfaces, p.curTok.Literal)
		for p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			interfaces = append(interfaces, p.curTok.Literal)
		}
	}
	ed := &ast.EnumDecl{Name: name, CtorParams: ctorParams, Interfaces: interfaces, Annotations: anns, Line: line}
	if p.peekIs(lexer.TokenLBrace) {
		p.nextToken()
		p.nextToken()
		for !p.curIs(lexer.TokenSemicolon) && !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
			entry := ast.EnumEntryDecl{Name: p.curTok.Literal}
			if p.peekIs(lexer.TokenLParen) {
				p.nextToken()
				entry.Args = p.parseCallArgs(nil)
			}
			ed.Entries = append(ed.Entries, entry)
			if p.peekIs(lexer.TokenComma) {
				p.nextToken()
				p.nextToken()
				continue
			}
			break
		}
		if p.peekIs(lexer.TokenSemicolon) {
			p.nextToken()
			p.nextToken()
			for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
				p.skipTerminators()
				if p.curIs(lexer.TokenRBrace) {
					break
				}
				if p.curIs(lexer.TokenFun) {
					ed.Methods = append(ed.Methods, p.parseFunDecl(nil, ""))
				}
				p.nextToken()
			}
		} else {
			p.expect(lexer.TokenRBrace, "'}'")
		}
	}
	return ed
}

func (p *Parser) parseInterfaceDecl() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenIdentifier, "interface name")
	name := p.curTok.Literal
	var supers []string
	if p.peekIs(lexer.TokenColon) {
		p.nextToken()
		p.nextToken()
		supers = append(supers, p.curTok.Literal)
		for p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			supers = append(supers, p.curTok.Literal)
		}
	}
	iface := &ast.InterfaceDecl{Name: name, SuperIfaces: supers, Line: line}
	if p.peekIs(lexer.TokenLBrace) {
		p.nextToken()
		p.nextToken()
		for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
			p.skipTerminators()
			if p.curIs(lexer.TokenRBrace) {
				break
			}
			if p.curIs(lexer.TokenFun) {
				iface.Methods = append(iface.Methods, p.parseFunDecl(nil, ""))
			}
			p.nextToken()
		}
	}
	return iface
}

func (p *Parser) parseObjectDecl() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenIdentifier, "object name")
	name := p.curTok.Literal
	obj := &ast.ObjectDecl{Name: name, Line: line}
	if p.peekIs(lexer.TokenLBrace) {
		p.nextToken()
		p.nextToken()
		for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
			p.skipTerminators()
			if p.curIs(lexer.TokenRBrace) {
				break
			}
			vis := p.consumeVisibility()
			switch p.curTok.Type {
			case lexer.TokenVal:
				obj.Members = append(obj.Members, ast.ClassMember{Property: p.parsePropertyDecl(false, vis)})
			case lexer.TokenVar:
				obj.Members = append(obj.Members, ast.ClassMember{Property: p.parsePropertyDecl(true, vis)})
			case lexer.TokenFun:
				obj.Methods = append(obj.Methods, p.parseFunDecl(nil, vis))
			}
			p.nextToken()
		}
	}
	return obj
}

func (p *Parser) parseAnnotationClassDecl() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenClass, "'class'")
	p.expect(lexer.TokenIdentifier, "annotation class name")
	name := p.curTok.Literal
	var params []ast.Param
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		params = p.parseParamList()
	}
	return &ast.AnnotationClassDecl{Name: name, Params: params, Line: line}
}

// ---------------------------------------------------------------------
// expressions: precedence climbing
// ---------------------------------------------------------------------

type precedence int

const (
	precLowest precedence = iota
	precComma
	precElvis
	precPipeline
	precOr
	precAnd
	precEquality
	precComparison
	precRange
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
)

func (p *Parser) parseExpression(min precedence) ast.Expression {
	if p.curIs(lexer.TokenIf) {
		return p.parseIfLike()
	}
	if p.curIs(lexer.TokenWhen) {
		return p.parseWhenExpr()
	}
	if p.curIs(lexer.TokenTry) {
		return p.parseTryExpr()
	}
	left := p.parseElvis()
	_ = min
	return left
}

func (p *Parser) parseElvis() ast.Expression {
	left := p.parsePipeline()
	for p.peekIs(lexer.TokenElvis) {
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		right := p.parsePipeline()
		left = &ast.Elvis{Left: left, Right: right, Line: line}
	}
	return left
}

func (p *Parser) parsePipeline() ast.Expression {
	left := p.parseOr()
	for p.peekIs(lexer.TokenPipeGt) {
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		rhs := p.parseOr()
		var call *ast.Call
		switch r := rhs.(type) {
		case *ast.Call:
			call = r
		case *ast.PartialApp:
			call = r.Call // the pipeline fills the placeholder itself
		default:
			call = &ast.Call{Callee: rhs, Line: line}
		}
		left = &ast.Pipeline{Value: left, Call: call, Line: line}
	}
	return left
}

func (p *Parser) parseOr() ast.Expression {
	left := p.parseAnd()
	for p.peekIs(lexer.TokenOrOr) {
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		right := p.parseAnd()
		left = &ast.Binary{Op: "||", Left: left, Right: right, Line: line}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expression {
	left := p.parseEquality()
	for p.peekIs(lexer.TokenAndAnd) {
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		right := p.parseEquality()
		left = &ast.Binary{Op: "&&", Left: left, Right: right, Line: line}
	}
	return left
}

func (p *Parser) parseEquality() ast.Expression {
	left := p.parseComparison()
	for p.peekIs(lexer.TokenEq) || p.peekIs(lexer.TokenNotEq) {
		op := "=="
		if p.peekIs(lexer.TokenNotEq) {
			op = "!="
		}
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		right := p.parseComparison()
		left = &ast.Binary{Op: op, Left: left, Right: right, Line: line}
	}
	return left
}

func isComparisonPeek(tt lexer.TokenType) (string, bool) {
	switch tt {
	case lexer.TokenLt:
		return "<", true
	case lexer.TokenGt:
		return ">", true
	case lexer.TokenLtEq:
		return "<=", true
	case lexer.TokenGtEq:
		return ">=", true
	}
	return "", false
}

// parseComparison builds a plain Binary for a single comparison, or a
// ChainedComparison when more than one comparison operator appears at
// the same level (`a < b < c`), per spec.md §4.3.9.
func (p *Parser) parseComparison() ast.Expression {
	line := p.curTok.Line
	first := p.parseRange()
	var operands []ast.Expression
	var ops []string
	operands = append(operands, first)
	for {
		if op, ok := isComparisonPeek(p.peekTok.Type); ok {
			p.nextToken()
			p.nextToken()
			operands = append(operands, p.parseRange())
			ops = append(ops, op)
			continue
		}
		// An is/in on a later line starts a new construct (e.g. the next
		// when arm), not an infix test on this operand.
		if p.peekIs(lexer.TokenIs) && p.peekTok.Line == p.curTok.Line {
			p.nextToken()
			p.nextToken()
			neg := false
			if p.curIs(lexer.TokenNot) {
				neg = true
				p.nextToken()
			}
			typeName := p.curTok.Literal
			var be ast.Expression = &ast.Binary{Op: "is", Left: operands[len(operands)-1], Right: &ast.Identifier{Name: typeName, Line: p.curTok.Line}, Line: line}
			if neg {
				be = &ast.Unary{Op: "!", Operand: be, Line: line}
			}
			operands[len(operands)-1] = be
			continue
		}
		if p.peekIs(lexer.TokenIn) && p.peekTok.Line == p.curTok.Line {
			p.nextToken()
			p.nextToken()
			rhs := p.parseRange()
			operands[len(operands)-1] = &ast.Binary{Op: "in", Left: operands[len(operands)-1], Right: rhs, Line: line}
			continue
		}
		if p.peekIs(lexer.TokenAs) {
			p.nextToken()
			p.nextToken()
			typeName := p.curTok.Literal
			operands[len(operands)-1] = &ast.Binary{Op: "as", Left: operands[len(operands)-1], Right: &ast.Identifier{Name: typeName, Line: p.curTok.Line}, Line: line}
			continue
		}
		break
	}
	if len(ops) == 0 {
		return operands[0]
	}
	if len(ops) == 1 {
		return &ast.Binary{Op: ops[0], Left: operands[0], Right: operands[1], Line: line}
	}
	return &ast.ChainedComparison{Operands: operands, Ops: ops, Line: line}
}

func (p *Parser) parseRange() ast.Expression {
	left := p.parseAdditive()
	if p.peekIs(lexer.TokenDotDot) || p.peekIs(lexer.TokenDotDotLt) {
		inclusive := p.peekIs(lexer.TokenDotDot)
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		right := p.parseAdditive()
		return &ast.RangeLit{Start: left, End: right, Inclusive: inclusive, Line: line}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expression {
	left := p.parseMultiplicative()
	for p.peekIs(lexer.TokenPlus) || p.peekIs(lexer.TokenMinus) {
		op := "+"
		if p.peekIs(lexer.TokenMinus) {
			op = "-"
		}
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		right := p.parseMultiplicative()
		left = &ast.Binary{Op: op, Left: left, Right: right, Line: line}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expression {
	left := p.parseUnary()
	for p.peekIs(lexer.TokenStar) || p.peekIs(lexer.TokenSlash) || p.peekIs(lexer.TokenPercent) {
		var op string
		switch p.peekTok.Type {
		case lexer.TokenStar:
			op = "*"
		case lexer.TokenSlash:
			op = "/"
		case lexer.TokenPercent:
			op = "%"
		}
		line := p.peekTok.Line
		p.nextToken()
		p.nextToken()
		right := p.parseUnary()
		left = &ast.Binary{Op: op, Left: left, Right: right, Line: line}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenPlus, lexer.TokenMinus, lexer.TokenNot:
		op := p.curTok.Literal
		line := p.curTok.Line
		p.nextToken()
		operand := p.parseUnary()
		return &ast.Unary{Op: op, Operand: operand, Line: line}
	case lexer.TokenPlusPlus, lexer.TokenMinusMinus:
		op := p.curTok.Literal
		line := p.curTok.Line
		p.nextToken()
		operand := p.parseUnary()
		return &ast.Unary{Op: op, Operand: operand, Line: line}
	case lexer.TokenStar:
		line := p.curTok.Line
		p.nextToken()
		operand := p.parseUnary()
		return &ast.SpreadArg{Value: operand, Line: line}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	for {
		switch p.peekTok.Type {
		case lexer.TokenDot:
			p.nextToken()
			expr = p.parseMemberOrMethod(expr, false)
		case lexer.TokenSafeDot:
			p.nextToken()
			expr = p.parseMemberOrMethod(expr, true)
		case lexer.TokenLParen:
			p.nextToken()
			expr = p.parseCallTail(expr)
		case lexer.TokenLBracket:
			p.nextToken()
			line := p.curTok.Line
			p.nextToken()
			idx := p.parseExpression(precLowest)
			p.expect(lexer.TokenRBracket, "']'")
			expr = &ast.IndexAccess{Receiver: expr, Index: idx, Line: line}
		case lexer.TokenSafeIndex:
			p.nextToken()
			line := p.curTok.Line
			p.nextToken()
			idx := p.parseExpression(precLowest)
			p.expect(lexer.TokenRBracket, "']'")
			expr = &ast.IndexAccess{Receiver: expr, Index: idx, Safe: true, Line: line}
		case lexer.TokenDoubleColon:
			p.nextToken()
			line := p.curTok.Line
			p.nextToken()
			name := p.curTok.Literal
			if name == "new" {
				if id, ok := expr.(*ast.Identifier); ok {
					expr = &ast.ConstructorRef{TypeName: id.Name, Line: line}
					continue
				}
			}
			expr = &ast.MethodRef{Receiver: expr, Name: name, Line: line}
		case lexer.TokenPlusPlus, lexer.TokenMinusMinus:
			op := p.peekTok.Literal
			line := p.peekTok.Line
			p.nextToken()
			expr = &ast.Unary{Op: op, Operand: expr, Postfix: true, Line: line}
		case lexer.TokenQuestion:
			if !p.isLambdaTrailerAhead() {
				line := p.peekTok.Line
				p.nextToken()
				expr = &ast.ErrorPropagation{Operand: expr, Line: line}
			} else {
				return expr
			}
		case lexer.TokenLBrace:
			if call, ok := p.tryTrailingLambda(expr); ok {
				expr = call
				continue
			}
			return expr
		default:
			return expr
		}
	}
}

// isLambdaTrailerAhead exists so `?` isn't misread when followed by a
// trailing-lambda form it has no business combining with; kept simple
// since Nova has no `?{` construct.
func (p *Parser) isLambdaTrailerAhead() bool { return false }

func (p *Parser) parseMemberOrMethod(recv ast.Expression, safe bool) ast.Expression {
	line := p.curTok.Line
	p.nextToken()
	name := p.curTok.Literal
	switch name {
	case "let", "also", "run", "apply", "takeIf", "takeUnless":
		if p.peekIs(lexer.TokenLBrace) || p.peekIs(lexer.TokenLParen) {
			return p.parseScopeShorthand(recv, name, line)
		}
	}
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		args := p.parseCallArgsWithSpread()
		return &ast.MethodCall{Receiver: recv, Name: name, Args: args.args, SpreadAt: args.spread, Safe: safe, Line: line}
	}
	if p.peekIs(lexer.TokenLBrace) {
		lambdaLine := p.peekTok.Line
		p.nextToken()
		body := p.parseBlockStatements()
		lambda := &ast.LambdaLit{Body: body, Line: lambdaLine}
		return &ast.MethodCall{Receiver: recv, Name: name, Args: []ast.Expression{lambda}, Safe: safe, Line: line}
	}
	return &ast.MemberAccess{Receiver: recv, Name: name, Safe: safe, Line: line}
}

func (p *Parser) parseScopeShorthand(recv ast.Expression, kind string, line int) ast.Expression {
	itName := ""
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		p.nextToken()
		itName = p.curTok.Literal
		p.expect(lexer.TokenRParen, "')'")
	}
	p.expect(lexer.TokenLBrace, "'{'")
	body := p.parseBlockStatements()
	return &ast.ScopeShorthand{Receiver: recv, Kind: kind, ItOrThis: itName, Block: body, Line: line}
}

// tryTrailingLambda handles Kotlin's trailing-lambda call sugar: `f { ... }`
// meaning `f({ ... })`, applicable only when expr is itself callable
// (an Identifier/MemberAccess, not already a completed call).
func (p *Parser) tryTrailingLambda(expr ast.Expression) (ast.Expression, bool) {
	switch expr.(type) {
	case *ast.Identifier, *ast.MemberAccess:
	default:
		return nil, false
	}
	p.nextToken()
	line := p.curTok.Line
	lambda := p.parseLambdaBody(line)
	switch e := expr.(type) {
	case *ast.Identifier:
		return &ast.Call{Callee: e, Args: []ast.Expression{lambda}, Line: line}, true
	case *ast.MemberAccess:
		return &ast.MethodCall{Receiver: e.Receiver, Name: e.Name, Args: []ast.Expression{lambda}, Safe: e.Safe, Line: line}, true
	}
	return nil, false
}

func (p *Parser) parseCallTail(callee ast.Expression) ast.Expression {
	line := p.curTok.Line
	args := p.parseCallArgsWithSpread()
	call := &ast.Call{Callee: callee, Args: args.args, SpreadAt: args.spread, Line: line}
	if p.peekIs(lexer.TokenLBrace) {
		p.nextToken()
		lambdaLine := p.curTok.Line
		lambda := p.parseLambdaBody(lambdaLine)
		call.Args = append(call.Args, lambda)
	}
	return maybePlaceholderCall(call)
}

// maybePlaceholderCall wraps Call as a PartialApp when its arg list
// contains a Placeholder (spec.md §4.3.8) — evaluating it should
// produce a Function, not invoke the callee.
func maybePlaceholderCall(call *ast.Call) ast.Expression {
	for _, a := range call.Args {
		if _, ok := a.(*ast.Placeholder); ok {
			return &ast.PartialApp{Call: call, Line: call.Line}
		}
	}
	return call
}

type argList struct {
	args   []ast.Expression
	spread map[int]bool
}

// parseCallArgsWithSpread parses a parenthesized argument list; curTok
// is '(' on entry and ')' on return.
func (p *Parser) parseCallArgsWithSpread() argList {
	out := argList{}
	if p.peekIs(lexer.TokenRParen) {
		p.nextToken()
		return out
	}
	p.nextToken()
	idx := 0
	for {
		if p.curIs(lexer.TokenStar) {
			p.nextToken()
			if out.spread == nil {
				out.spread = map[int]bool{}
			}
			out.spread[idx] = true
		}
		if p.curIs(lexer.TokenUnderscore) && !p.peekIs(lexer.TokenIdentifier) {
			out.args = append(out.args, &ast.Placeholder{Line: p.curTok.Line})
		} else {
			out.args = append(out.args, p.parseExpression(precComma))
		}
		idx++
		if p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	p.expect(lexer.TokenRParen, "')'")
	return out
}

// parseCallArgs is the no-spread-tracking convenience used by
// annotation/enum-entry/super-call argument lists, which never spread.
func (p *Parser) parseCallArgs(_ []ast.Expression) []ast.Expression {
	return p.parseCallArgsWithSpread().args
}

func (p *Parser) parseLambdaBody(line int) *ast.LambdaLit {
	var params []ast.Param
	p.nextToken() // step past '{'
	m := p.mark()
	if p.curIs(lexer.TokenIdentifier) || p.curIs(lexer.TokenUnderscore) {
		names := []string{p.curTok.Literal}
		ok := true
		for p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			if !p.curIs(lexer.TokenIdentifier) {
				ok = false
				break
			}
			names = append(names, p.curTok.Literal)
		}
		if ok && p.peekIs(lexer.TokenArrow) {
			p.nextToken()
			p.nextToken()
			for _, n := range names {
				params = append(params, ast.Param{Name: n})
			}
		} else {
			p.reset(m)
		}
	}
	body := p.parseLambdaStatements()
	return &ast.LambdaLit{Params: params, Body: body, Line: line}
}

func (p *Parser) parseLambdaStatements() []ast.Statement {
	var body []ast.Statement
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		p.skipTerminators()
		if p.curIs(lexer.TokenRBrace) {
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			body = append(body, stmt)
		}
		p.nextToken()
	}
	return body
}

// parseGuardLet parses `guard val x = expr else { ... }` (spec.md §4.3's
// early-return guard form): ElseBody must diverge, which is checked by
// the evaluator, not here.
func (p *Parser) parseGuardLet() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenVal, "'val'")
	p.expect(lexer.TokenIdentifier, "identifier")
	name := p.curTok.Literal
	p.expect(lexer.TokenAssign, "'='")
	p.nextToken()
	val := p.parseExpression(precLowest)
	p.expect(lexer.TokenElse, "'else'")
	p.expect(lexer.TokenLBrace, "'{'")
	elseBody := p.parseBlockStatements()
	return &ast.GuardLet{Name: name, Value: val, ElseBody: elseBody, Line: line}
}

// parseIfLike handles both the plain `if (cond) {...} else {...}` and
// the `if (val x = expr) {...} else {...}` binding form (ast.IfLet),
// distinguished by whether the parenthesized head starts with 'val'.
func (p *Parser) parseIfLike() ast.Expression {
	line := p.curTok.Line
	p.expect(lexer.TokenLParen, "'('")
	if p.peekIs(lexer.TokenVal) {
		p.nextToken()
		p.expect(lexer.TokenIdentifier, "identifier")
		name := p.curTok.Literal
		p.expect(lexer.TokenAssign, "'='")
		p.nextToken()
		val := p.parseExpression(precLowest)
		p.expect(lexer.TokenRParen, "')'")
		p.expect(lexer.TokenLBrace, "'{'")
		then := p.parseBlockStatements()
		var els []ast.Statement
		if p.peekIs(lexer.TokenElse) {
			p.nextToken()
			p.expect(lexer.TokenLBrace, "'{'")
			els = p.parseBlockStatements()
		}
		return &ast.IfLet{Name: name, Value: val, Then: then, Else: els, Line: line}
	}
	p.nextToken()
	cond := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen, "')'")
	p.expect(lexer.TokenLBrace, "'{'")
	then := p.parseBlockStatements()
	var els []ast.Statement
	if p.peekIs(lexer.TokenElse) {
		p.nextToken()
		if p.peekIs(lexer.TokenIf) {
			p.nextToken()
			els = []ast.Statement{&ast.ExpressionStatement{Expr: p.parseIfLike(), Line: p.curTok.Line}}
		} else {
			p.expect(lexer.TokenLBrace, "'{'")
			els = p.parseBlockStatements()
		}
	}
	return &ast.IfExpr{Cond: cond, Then: then, Else: els, Line: line}
}

// parseWhenExpr parses both subject-less (`when { cond -> ... }`) and
// subject-bound (`when (x) { 1 -> ...; in 1..5 -> ...; is Foo -> ...;
// else -> ... }`) forms, matching spec.md §4.3's when-expression rules.
func (p *Parser) parseWhenExpr() ast.Expression {
	line := p.curTok.Line
	w := &ast.WhenExpr{Line: line}
	if p.peekIs(lexer.TokenLParen) {
		p.nextToken()
		p.nextToken()
		if p.curIs(lexer.TokenVal) {
			p.nextToken()
			w.BindName = p.curTok.Literal
			p.expect(lexer.TokenAssign, "'='")
			p.nextToken()
			w.Subject = p.parseExpression(precLowest)
		} else {
			w.Subject = p.parseExpression(precLowest)
		}
		p.expect(lexer.TokenRParen, "')'")
	}
	p.expect(lexer.TokenLBrace, "'{'")
	p.nextToken()
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		p.skipTerminators()
		if p.curIs(lexer.TokenRBrace) {
			break
		}
		w.Arms = append(w.Arms, p.parseWhenArm(w.Subject != nil))
		p.nextToken()
	}
	return w
}

func (p *Parser) parseWhenArm(hasSubject bool) ast.WhenArm {
	var arm ast.WhenArm
	if p.curIs(lexer.TokenElse) {
		arm.IsElse = true
		p.expect(lexer.TokenArrow, "'->'")
	} else if !hasSubject {
		arm.Cond = p.parseExpression(precLowest)
		p.expect(lexer.TokenArrow, "'->'")
	} else if p.curIs(lexer.TokenIs) {
		p.nextToken()
		arm.TypeTest = p.curTok.Literal
		p.expect(lexer.TokenArrow, "'->'")
	} else if p.curIs(lexer.TokenIn) {
		p.nextToken()
		arm.RangeTest = p.parseExpression(precLowest)
		p.expect(lexer.TokenArrow, "'->'")
	} else {
		arm.Literal = p.parseExpression(precLowest)
		for p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			// Additional comma-separated matches collapse onto the same
			// arm body; only the first is kept as Literal since WhenArm
			// has room for one test — later values reuse the arm's Cond
			// slot as an OR-chain so `1, 2 -> ...` still matches either.
			more := p.parseExpression(precLowest)
			if arm.Cond == nil {
				arm.Cond = &ast.Binary{Op: "==", Left: &ast.Identifier{Name: "<subject>"}, Right: arm.Literal}
			}
			arm.Cond = &ast.Binary{Op: "||", Left: arm.Cond, Right: &ast.Binary{Op: "==", Left: &ast.Identifier{Name: "<subject>"}, Right: more}}
		}
		p.expect(lexer.TokenArrow, "'->'")
	}
	p.nextToken()
	if p.curIs(lexer.TokenLBrace) {
		arm.Body = p.parseBlockStatements()
	} else {
		arm.Body = []ast.Statement{&ast.ExpressionStatement{Expr: p.parseExpression(precLowest), Line: p.curTok.Line}}
	}
	return arm
}

func (p *Parser) parseTryExpr() ast.Expression {
	line := p.curTok.Line
	p.expect(lexer.TokenLBrace, "'{'")
	tryBody := p.parseBlockStatements()
	t := &ast.TryCatchFinally{Try: tryBody, Line: line}
	for p.peekIs(lexer.TokenCatch) {
		p.nextToken()
		p.expect(lexer.TokenLParen, "'('")
		p.nextToken()
		errName := p.curTok.Literal
		typeName := ""
		if p.peekIs(lexer.TokenColon) {
			p.nextToken()
			p.nextToken()
			typeName = p.curTok.Literal
		}
		p.expect(lexer.TokenRParen, "')'")
		p.expect(lexer.TokenLBrace, "'{'")
		body := p.parseBlockStatements()
		t.Catches = append(t.Catches, ast.CatchClause{ErrName: errName, TypeName: typeName, Body: body})
	}
	if p.peekIs(lexer.TokenFinally) {
		p.nextToken()
		p.expect(lexer.TokenLBrace, "'{'")
		t.Finally = p.parseBlockStatements()
	}
	return t
}

func (p *Parser) parsePrimary() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenInt:
		n, _ := strconv.ParseInt(p.curTok.Literal, 0, 64)
		return &ast.Literal{Kind: "int", Raw: p.curTok.Literal, Int: n, Line: p.curTok.Line}
	case lexer.TokenLong:
		n, _ := strconv.ParseInt(p.curTok.Literal, 0, 64)
		return &ast.Literal{Kind: "long", Raw: p.curTok.Literal, Int: n, Line: p.curTok.Line}
	case lexer.TokenFloat:
		f, _ := strconv.ParseFloat(p.curTok.Literal, 64)
		return &ast.Literal{Kind: "float", Raw: p.curTok.Literal, Float: f, Line: p.curTok.Line}
	case lexer.TokenDouble:
		f, _ := strconv.ParseFloat(p.curTok.Literal, 64)
		return &ast.Literal{Kind: "double", Raw: p.curTok.Literal, Float: f, Line: p.curTok.Line}
	case lexer.TokenChar:
		r := unescapeRune(p.curTok.Literal)
		return &ast.Literal{Kind: "char", Raw: p.curTok.Literal, Char: r, Line: p.curTok.Line}
	case lexer.TokenString:
		return p.parseStringLiteral()
	case lexer.TokenTrue:
		return &ast.Literal{Kind: "bool", Raw: "true", Bool: true, Line: p.curTok.Line}
	case lexer.TokenFalse:
		return &ast.Literal{Kind: "bool", Raw: "false", Bool: false, Line: p.curTok.Line}
	case lexer.TokenNull:
		return &ast.Literal{Kind: "null", Raw: "null", Line: p.curTok.Line}
	case lexer.TokenThis:
		return &ast.Identifier{Name: "this", Line: p.curTok.Line}
	case lexer.TokenSuper:
		return &ast.Identifier{Name: "super", Line: p.curTok.Line}
	case lexer.TokenIdentifier:
		return &ast.Identifier{Name: p.curTok.Literal, Line: p.curTok.Line}
	case lexer.TokenUnderscore:
		return &ast.Placeholder{Line: p.curTok.Line}
	case lexer.TokenLParen:
		p.nextToken()
		expr := p.parseExpression(precLowest)
		p.expect(lexer.TokenRParen, "')'")
		return expr
	case lexer.TokenLBrace:
		line := p.curTok.Line
		return p.parseLambdaBody(line)
	case lexer.TokenLBracket:
		return p.parseBracketLiteral()
	case lexer.TokenMinus, lexer.TokenPlus, lexer.TokenNot:
		return p.parseUnary()
	}
	p.addError("unexpected token %q", p.curTok.Literal)
	return nil
}

// parseBracketLiteral disambiguates `[1, 2, 3]` (ListLit) from
// `[k1: v1, k2: v2]` (MapLit) by checking, after the first element,
// whether a ':' follows — chosen over braces for either literal so
// neither collides with the lambda/block use of '{'.
func (p *Parser) parseBracketLiteral() ast.Expression {
	line := p.curTok.Line
	if p.peekIs(lexer.TokenRBracket) {
		p.nextToken()
		return &ast.ListLit{Line: line}
	}
	p.nextToken()
	first := p.parseExpression(precComma)
	if p.peekIs(lexer.TokenColon) {
		p.nextToken()
		p.nextToken()
		firstVal := p.parseExpression(precComma)
		m := &ast.MapLit{Line: line}
		m.Entries = append(m.Entries, ast.MapEntryLit{Key: first, Value: firstVal})
		for p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			k := p.parseExpression(precComma)
			p.expect(lexer.TokenColon, "':'")
			p.nextToken()
			v := p.parseExpression(precComma)
			m.Entries = append(m.Entries, ast.MapEntryLit{Key: k, Value: v})
		}
		p.expect(lexer.TokenRBracket, "']'")
		return m
	}
	l := &ast.ListLit{Line: line}
	l.Elements = append(l.Elements, first)
	for p.peekIs(lexer.TokenComma) {
		p.nextToken()
		p.nextToken()
		l.Elements = append(l.Elements, p.parseExpression(precComma))
	}
	p.expect(lexer.TokenRBracket, "']'")
	return l
}

// parseStringLiteral splits the lexer's raw ${...}-preserving content
// into ast.StringInterp's alternating Parts/Exprs, re-invoking a fresh
// Parser over each embedded expression substring — the lexer stays a
// single unbroken scan and never needs to understand nested expression
// syntax itself.
func (p *Parser) parseStringLiteral() ast.Expression {
	raw := p.curTok.Literal
	line := p.curTok.Line
	_, hasInterp := splitInterpolation(raw)
	if !hasInterp {
		return &ast.Literal{Kind: "string", Raw: raw, Str: unescapeString(raw), Line: line}
	}
	parts, exprSrcs := interpolationPieces(raw)
	si := &ast.StringInterp{Line: line}
	for i, part := range parts {
		si.Parts = append(si.Parts, unescapeString(part))
		if i < len(exprSrcs) {
			sub := New(exprSrcs[i])
			expr := sub.parseExpression(precLowest)
			if len(sub.errors) > 0 {
				p.errors = append(p.errors, sub.errors...)
			}
			si.Exprs = append(si.Exprs, expr)
		}
	}
	return si
}

// splitInterpolation reports whether raw contains an unescaped ${.
func splitInterpolation(raw string) (string, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' {
			i++
			continue
		}
		if raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			return raw, true
		}
	}
	return raw, false
}

// interpolationPieces splits raw into literal Parts (len = len(exprs)+1)
// and the raw source text of each ${...} expression.
func interpolationPieces(raw string) (parts []string, exprs []string) {
	var cur strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			cur.WriteByte(raw[i])
			cur.WriteByte(raw[i+1])
			i += 2
			continue
		}
		if raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			parts = append(parts, cur.String())
			cur.Reset()
			i += 2
			depth := 1
			start := i
			for i < len(raw) && depth > 0 {
				switch raw[i] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						break
					}
				case '"':
					i++
					for i < len(raw) && raw[i] != '"' {
						if raw[i] == '\\' {
							i++
						}
						i++
					}
				}
				if depth == 0 {
					break
				}
				i++
			}
			exprs = append(exprs, raw[start:i])
			i++ // skip closing }
			continue
		}
		cur.WriteByte(raw[i])
		i++
	}
	parts = append(parts, cur.String())
	return parts, exprs
}

func unescapeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '$':
				b.WriteByte('$')
			case '\'':
				b.WriteByte('\'')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unescapeRune(s string) rune {
	unescaped := unescapeString(s)
	for _, r := range unescaped {
		return r
	}
	return 0
}

func exprLine(e ast.Expression) int {
	switch n := e.(type) {
	case *ast.Identifier:
		return n.Line
	case *ast.Literal:
		return n.Line
	case *ast.Binary:
		return n.Line
	case *ast.Call:
		return n.Line
	case *ast.MemberAccess:
		return n.Line
	case *ast.MethodCall:
		return n.Line
	case *ast.IndexAccess:
		return n.Line
	}
	return 0
}
