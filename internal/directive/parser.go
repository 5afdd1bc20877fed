package directive

import (
	"errors"
	"strings"

	"github.com/verforge/verforge/internal/predicate"
)

type tagKind int

const (
	tagIf tagKind = iota
	tagElif
	tagElse
	tagEndIf
)

func (k tagKind) String() string {
	switch k {
	case tagIf:
		return "if"
	case tagElif:
		return "elif"
	case tagElse:
		return "else"
	default:
		return "endif"
	}
}

// tag is a classified directive tag.
type tag struct {
	kind tagKind
	pred predicate.Expr
	src  string
	pos  Position
}

// Parse parses src into a Unit. name identifies the unit in errors.
// Parsing fails with *MalformedDirectiveError on unterminated tags, unknown
// directive or predicate keywords and unbalanced blocks.
func Parse(src []byte, name string, opts Options) (*Unit, error) {
	opts = opts.withDefaults()
	toks, err := NewLexer(string(src), name, opts).Tokenize()
	if err != nil {
		return nil, err
	}

	p := &parser{
		toks: toks,
		open: opts.Open,
		unit: &Unit{Name: name, size: len(src)},
	}
	nodes, stray, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if stray != nil {
		return nil, newMalformed(stray.pos, "'%s' without matching 'if'", stray.kind)
	}
	p.unit.Nodes = nodes
	return p.unit, nil
}

type parser struct {
	toks []Token
	pos  int
	open string
	unit *Unit
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

// parseBody collects nodes until EOF or a tag that closes or continues the
// enclosing block, which is returned to the caller.
func (p *parser) parseBody() ([]Node, *tag, error) {
	var nodes []Node
	for {
		tok := p.next()
		switch tok.Type {
		case TokenEOF:
			return nodes, nil, nil

		case TokenText:
			nodes = append(nodes, &TextNode{nodeBase: nodeBase{pos: tok.Pos}, Text: tok.Value})

		case TokenTag:
			t, err := p.classify(tok)
			if err != nil {
				return nil, nil, err
			}
			if t.kind != tagIf {
				return nodes, t, nil
			}
			blk, err := p.parseIf(t)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, blk)
		}
	}
}

func (p *parser) parseIf(open *tag) (*IfBlock, error) {
	p.unit.directives++
	blk := &IfBlock{nodeBase: nodeBase{pos: open.pos}}
	cur := Branch{Pred: open.pred, Source: open.src, pos: open.pos}
	inElse := false

	for {
		body, term, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		if term == nil {
			return nil, newMalformed(open.pos, "unclosed 'if' block (missing 'endif')")
		}
		if inElse {
			blk.Else = body
		} else {
			cur.Body = body
			blk.Branches = append(blk.Branches, cur)
		}

		switch term.kind {
		case tagElif:
			if inElse {
				return nil, newMalformed(term.pos, "'elif' after 'else'")
			}
			cur = Branch{Pred: term.pred, Source: term.src, pos: term.pos}
		case tagElse:
			if inElse {
				return nil, newMalformed(term.pos, "duplicate 'else'")
			}
			inElse = true
		case tagEndIf:
			return blk, nil
		}
	}
}

// classify splits a tag into its keyword and predicate.
func (p *parser) classify(tok Token) (*tag, error) {
	raw := tok.Raw
	lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
	kwEnd := lead
	for kwEnd < len(raw) && isLetter(raw[kwEnd]) {
		kwEnd++
	}
	kw := raw[lead:kwEnd]
	rest := raw[kwEnd:]
	predStart := kwEnd + len(rest) - len(strings.TrimLeft(rest, " \t\r\n"))
	predSrc := strings.TrimSpace(rest)

	t := &tag{pos: tok.Pos, src: predSrc}
	switch strings.ToLower(kw) {
	case "if":
		t.kind = tagIf
	case "elif", "elseif":
		t.kind = tagElif
	case "else":
		t.kind = tagElse
	case "endif":
		t.kind = tagEndIf
	case "":
		return nil, newMalformed(tok.Pos, "empty directive")
	default:
		return nil, newMalformed(tok.Pos, "unknown directive %q", kw)
	}

	if t.kind == tagElse || t.kind == tagEndIf {
		if predSrc != "" {
			return nil, newMalformed(tok.Pos, "unexpected %q after '%s'", predSrc, t.kind)
		}
		return t, nil
	}

	if predSrc == "" {
		return nil, newMalformed(tok.Pos, "'%s' requires a predicate", t.kind)
	}
	expr, err := predicate.Parse(predSrc)
	if err != nil {
		pos := tok.Pos
		var syn *predicate.SyntaxError
		if errors.As(err, &syn) {
			pos = advancePos(tok.Pos, p.open+raw[:predStart+syn.Offset])
		}
		return nil, &MalformedDirectiveError{Pos: pos, Msg: "invalid predicate", Cause: err}
	}
	t.pred = expr
	for _, v := range predicate.Versions(expr) {
		p.unit.refs = append(p.unit.refs, reference{version: v, pos: tok.Pos})
	}
	return t, nil
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
