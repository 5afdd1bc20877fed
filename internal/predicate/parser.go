package predicate

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokWord   // keyword or bare version
	tokString // "quoted version"
	tokOp     // >= <= == != = > <
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

// Parse parses a predicate in prefix form. Keywords are case-insensitive and
// sub-expressions may be parenthesised:
//
//	GTE 1.20
//	RANGE "1.19" "1.20.4"
//	AND (GTE 1.20) (NOT (EQ 1.20.4))
//
// A single infix comparison is accepted as shorthand: >= 1.20, <= 1.20,
// == 1.20, != 1.20, > 1.20, < 1.20.
func Parse(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Offset: tok.pos, Msg: "unexpected " + describe(tok) + " after predicate"}
	}
	return e, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseExpr() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Offset: closing.pos, Msg: "expected ')', found " + describe(closing)}
		}
		return e, nil

	case tokOp:
		v, err := p.parseVersion()
		if err != nil {
			return nil, err
		}
		switch tok.value {
		case ">=":
			return &Compare{Op: OpGTE, Version: v}, nil
		case "<=":
			return &Compare{Op: OpLTE, Version: v}, nil
		case "==", "=":
			return &Compare{Op: OpEQ, Version: v}, nil
		case "!=":
			return &Not{X: &Compare{Op: OpEQ, Version: v}}, nil
		case ">":
			return &Not{X: &Compare{Op: OpLTE, Version: v}}, nil
		default: // "<"
			return &Not{X: &Compare{Op: OpGTE, Version: v}}, nil
		}

	case tokWord:
		return p.parseKeyword(tok)

	case tokEOF:
		return nil, &SyntaxError{Offset: tok.pos, Msg: "empty predicate"}

	default:
		return nil, &SyntaxError{Offset: tok.pos, Msg: "unexpected " + describe(tok)}
	}
}

func (p *parser) parseKeyword(kw token) (Expr, error) {
	switch strings.ToUpper(kw.value) {
	case "EQ", "GTE", "LTE":
		v, err := p.parseVersion()
		if err != nil {
			return nil, err
		}
		op := map[string]Op{"EQ": OpEQ, "GTE": OpGTE, "LTE": OpLTE}[strings.ToUpper(kw.value)]
		return &Compare{Op: op, Version: v}, nil

	case "RANGE":
		lo, err := p.parseVersion()
		if err != nil {
			return nil, err
		}
		hi, err := p.parseVersion()
		if err != nil {
			return nil, err
		}
		return &Range{Low: lo, High: hi}, nil

	case "NOT":
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil

	case "AND", "OR":
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		y, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		op := OpAnd
		if strings.EqualFold(kw.value, "OR") {
			op = OpOr
		}
		return &Binary{Op: op, X: x, Y: y}, nil

	default:
		return nil, &SyntaxError{Offset: kw.pos, Msg: "unknown predicate keyword " + strconv.Quote(kw.value)}
	}
}

func (p *parser) parseVersion() (string, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord, tokString:
		if tok.value == "" {
			return "", &SyntaxError{Offset: tok.pos, Msg: "empty version"}
		}
		return tok.value, nil
	default:
		return "", &SyntaxError{Offset: tok.pos, Msg: "expected version, found " + describe(tok)}
	}
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, value: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, value: ")", pos: i})
			i++
		case c == '"':
			end := strings.IndexByte(src[i+1:], '"')
			if end < 0 {
				return nil, &SyntaxError{Offset: i, Msg: "unterminated quoted version"}
			}
			toks = append(toks, token{kind: tokString, value: src[i+1 : i+1+end], pos: i})
			i += end + 2
		case strings.IndexByte("<>=!", c) >= 0:
			start := i
			i++
			if i < len(src) && src[i] == '=' {
				i++
			}
			op := src[start:i]
			if op == "!" {
				return nil, &SyntaxError{Offset: start, Msg: "unexpected '!'"}
			}
			toks = append(toks, token{kind: tokOp, value: op, pos: start})
		case isWordByte(c):
			start := i
			for i < len(src) && isWordByte(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, value: src[start:i], pos: start})
		default:
			return nil, &SyntaxError{Offset: i, Msg: "unexpected character " + strconv.QuoteRune(rune(c))}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '.' || c == '_' || c == '-' || c == '+'
}

func describe(tok token) string {
	switch tok.kind {
	case tokEOF:
		return "end of predicate"
	case tokString:
		return strconv.Quote(tok.value)
	default:
		return "'" + tok.value + "'"
	}
}
