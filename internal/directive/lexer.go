package directive

import (
	"strings"
	"unicode/utf8"
)

// Default directive delimiters.
const (
	DefaultOpen  = "/*#"
	DefaultClose = "*/"
)

// Options configures directive syntax.
type Options struct {
	// Open and Close delimit a directive tag.
	Open  string
	Close string
	// TrimLines makes a tag that is alone on its line consume the whole line,
	// including the newline.
	TrimLines bool
}

// DefaultOptions returns the default syntax with line trimming enabled.
func DefaultOptions() Options {
	return Options{Open: DefaultOpen, Close: DefaultClose, TrimLines: true}
}

func (o Options) withDefaults() Options {
	if o.Open == "" {
		o.Open = DefaultOpen
	}
	if o.Close == "" {
		o.Close = DefaultClose
	}
	return o
}

// TokenType identifies the type of token.
type TokenType int

// TokenType constants.
const (
	TokenText TokenType = iota // literal source
	TokenTag                   // directive tag, delimiters stripped
	TokenEOF                   // end of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenTag:
		return "TAG"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token is a lexical token. For tags, Value is the trimmed tag content and
// Raw the content exactly as written between the delimiters.
type Token struct {
	Type  TokenType
	Value string
	Raw   string
	Pos   Position
}

// Lexer splits a source unit into text and tag tokens in a single
// left-to-right pass.
type Lexer struct {
	input string
	opts  Options
	pos   Position
}

// NewLexer creates a lexer for input. unit names the source in positions.
func NewLexer(input, unit string, opts Options) *Lexer {
	return &Lexer{
		input: input,
		opts:  opts.withDefaults(),
		pos:   Position{Unit: unit, Line: 1, Column: 1},
	}
}

// Tokenize converts the input into a slice of tokens ending with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	open, closing := l.opts.Open, l.opts.Close

	for l.pos.Offset < len(l.input) {
		rest := l.input[l.pos.Offset:]
		idx := strings.Index(rest, open)
		if idx < 0 {
			tokens = append(tokens, Token{Type: TokenText, Value: rest, Pos: l.pos})
			l.advance(rest)
			break
		}
		if idx > 0 {
			tokens = append(tokens, Token{Type: TokenText, Value: rest[:idx], Pos: l.pos})
			l.advance(rest[:idx])
		}

		start := l.pos.Offset
		bodyStart := start + len(open)
		end := strings.Index(l.input[bodyStart:], closing)
		if end < 0 {
			return nil, newMalformed(l.pos, "unterminated directive: missing %q", closing)
		}
		raw := l.input[bodyStart : bodyStart+end]
		tagEnd := bodyStart + end + len(closing)
		tokens = append(tokens, Token{Type: TokenTag, Value: strings.TrimSpace(raw), Raw: raw, Pos: l.pos})

		consumeTo := tagEnd
		if l.opts.TrimLines {
			if lineStart, ok := l.blankBefore(start); ok {
				if lineEnd, ok := l.blankAfter(tagEnd); ok {
					tokens = trimIndent(tokens, start-lineStart)
					consumeTo = lineEnd
				}
			}
		}
		l.advance(l.input[start:consumeTo])
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: l.pos})
	return tokens, nil
}

// blankBefore reports whether only spaces and tabs precede offset p on its
// line, returning the offset where the line starts.
func (l *Lexer) blankBefore(p int) (int, bool) {
	i := p - 1
	for i >= 0 && (l.input[i] == ' ' || l.input[i] == '\t') {
		i--
	}
	if i < 0 || l.input[i] == '\n' {
		return i + 1, true
	}
	return 0, false
}

// blankAfter reports whether only blanks follow offset p up to the end of the
// line, returning the offset just past the newline.
func (l *Lexer) blankAfter(p int) (int, bool) {
	i := p
	for i < len(l.input) && (l.input[i] == ' ' || l.input[i] == '\t' || l.input[i] == '\r') {
		i++
	}
	if i == len(l.input) {
		return i, true
	}
	if l.input[i] == '\n' {
		return i + 1, true
	}
	return 0, false
}

// trimIndent removes n bytes of indentation from the text token that
// precedes the tag just appended.
func trimIndent(tokens []Token, n int) []Token {
	if n == 0 || len(tokens) < 2 {
		return tokens
	}
	prev := &tokens[len(tokens)-2]
	if prev.Type != TokenText {
		return tokens
	}
	prev.Value = prev.Value[:len(prev.Value)-n]
	if prev.Value == "" {
		tag := tokens[len(tokens)-1]
		tokens = append(tokens[:len(tokens)-2], tag)
	}
	return tokens
}

func (l *Lexer) advance(s string) {
	l.pos = advancePos(l.pos, s)
}

// advancePos returns the position reached after consuming s from p.
func advancePos(p Position, s string) Position {
	p.Offset += len(s)
	if n := strings.Count(s, "\n"); n > 0 {
		p.Line += n
		p.Column = 1 + utf8.RuneCountInString(s[strings.LastIndexByte(s, '\n')+1:])
	} else {
		p.Column += utf8.RuneCountInString(s)
	}
	return p
}
