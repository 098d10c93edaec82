// Package parser contains the statement tokenizer and the bind-variable
// rewriter used by dynamic SQL cursors.
//
// What: A byte-oriented scanner that splits SQL text into classified spans
// (whitespace, comments, numbers, :name placeholders, the three string
// flavours, quoted and plain identifiers, the :: cast operator) and a rewriter
// that turns :name placeholders into positional parameters.
// How: The scanner never fails. Unterminated literals run to the end of the
// input, unknown bytes become one-byte "other" tokens. The rewriter walks the
// token stream once and re-emits every span.
// Why: Placeholders must not be recognised inside literals, comments or
// quoted identifiers, and :: must not be mistaken for a placeholder prefix.
// A full SQL grammar is not needed for that.
package parser

// TokenKind classifies a span of statement text.
type TokenKind int

const (
	TokNone TokenKind = iota // end of input
	TokWhitespace
	TokComment
	TokNumber
	TokBindVar
	TokString       // '...'
	TokEscapeString // E'...'
	TokDollarString // $tag$...$tag$
	TokQuotedIdent  // "..."
	TokIdent
	TokDoubleColon
	TokOther
)

func (k TokenKind) String() string {
	switch k {
	case TokNone:
		return "none"
	case TokWhitespace:
		return "whitespace"
	case TokComment:
		return "comment"
	case TokNumber:
		return "number"
	case TokBindVar:
		return "bindvar"
	case TokString:
		return "string"
	case TokEscapeString:
		return "escape-string"
	case TokDollarString:
		return "dollar-string"
	case TokQuotedIdent:
		return "quoted-ident"
	case TokIdent:
		return "ident"
	case TokDoubleColon:
		return "double-colon"
	default:
		return "other"
	}
}

// Token is one classified span. Pos and End delimit the whole span in the
// input. Val holds the content: the placeholder name without the colon, the
// body of a string or quoted identifier without its delimiters (escapes left
// as written), the body of a dollar string. Tag is the dollar-quote tag,
// including both dollar signs.
type Token struct {
	Kind TokenKind
	Pos  int
	End  int
	Val  string
	Tag  string
}

// Lexer scans statement text left to right.
type Lexer struct {
	s   string
	pos int
}

// NewLexer returns a scanner over s.
func NewLexer(s string) *Lexer { return &Lexer{s: s} }

func (lx *Lexer) peekN(n int) byte {
	p := lx.pos + n
	if p >= len(lx.s) {
		return 0
	}
	return lx.s[p]
}

// isIdentStart reports whether c can start an unquoted identifier. Bytes of
// multi-byte UTF-8 sequences count as letters.
func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c >= 0x80
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// Next returns the next token; TokNone at end of input.
func (lx *Lexer) Next() Token {
	start := lx.pos
	if start >= len(lx.s) {
		return Token{Kind: TokNone, Pos: start, End: start}
	}
	c := lx.s[start]
	switch {
	case isSpace(c):
		return lx.tokenizeSpaces(start)
	case c == '/' && lx.peekN(1) == '*':
		return lx.tokenizeBlockComment(start)
	case c == '-' && lx.peekN(1) == '-':
		return lx.tokenizeLineComment(start)
	case c == '$' && (lx.peekN(1) == '$' || isIdentStart(lx.peekN(1))):
		return lx.tokenizeDollarString(start)
	case isDigit(c) || c == '.' && isDigit(lx.peekN(1)):
		return lx.tokenizeNumber(start)
	case c == ':' && lx.peekN(1) == ':':
		lx.pos += 2
		return Token{Kind: TokDoubleColon, Pos: start, End: lx.pos, Val: "::"}
	case c == ':' && isIdentStart(lx.peekN(1)):
		return lx.tokenizeBindVar(start)
	case (c == 'e' || c == 'E') && lx.peekN(1) == '\'':
		return lx.tokenizeEscapeString(start)
	case c == '\'':
		return lx.tokenizeQuoted(start, '\'', TokString)
	case c == '"':
		return lx.tokenizeQuoted(start, '"', TokQuotedIdent)
	case isIdentStart(c):
		return lx.tokenizeIdent(start)
	}
	lx.pos++
	return Token{Kind: TokOther, Pos: start, End: lx.pos, Val: lx.s[start:lx.pos]}
}

func (lx *Lexer) tokenizeSpaces(start int) Token {
	for lx.pos < len(lx.s) && isSpace(lx.s[lx.pos]) {
		lx.pos++
	}
	return Token{Kind: TokWhitespace, Pos: start, End: lx.pos, Val: lx.s[start:lx.pos]}
}

// Block comments do not nest; an unterminated comment runs to the end.
func (lx *Lexer) tokenizeBlockComment(start int) Token {
	lx.pos += 2
	for lx.pos < len(lx.s) {
		if lx.s[lx.pos] == '*' && lx.peekN(1) == '/' {
			lx.pos += 2
			break
		}
		lx.pos++
	}
	return Token{Kind: TokComment, Pos: start, End: lx.pos, Val: lx.s[start:lx.pos]}
}

// The terminating newline is not part of a line comment.
func (lx *Lexer) tokenizeLineComment(start int) Token {
	for lx.pos < len(lx.s) && lx.s[lx.pos] != '\n' {
		lx.pos++
	}
	return Token{Kind: TokComment, Pos: start, End: lx.pos, Val: lx.s[start:lx.pos]}
}

func (lx *Lexer) tokenizeNumber(start int) Token {
	dot := false
	for lx.pos < len(lx.s) {
		c := lx.s[lx.pos]
		if isDigit(c) {
			lx.pos++
		} else if c == '.' && !dot {
			dot = true
			lx.pos++
		} else {
			break
		}
	}
	return Token{Kind: TokNumber, Pos: start, End: lx.pos, Val: lx.s[start:lx.pos]}
}

func (lx *Lexer) tokenizeBindVar(start int) Token {
	lx.pos++ // colon
	nameStart := lx.pos
	for lx.pos < len(lx.s) && isIdentChar(lx.s[lx.pos]) {
		lx.pos++
	}
	return Token{Kind: TokBindVar, Pos: start, End: lx.pos, Val: lx.s[nameStart:lx.pos]}
}

func (lx *Lexer) tokenizeIdent(start int) Token {
	for lx.pos < len(lx.s) && isIdentChar(lx.s[lx.pos]) {
		lx.pos++
	}
	return Token{Kind: TokIdent, Pos: start, End: lx.pos, Val: lx.s[start:lx.pos]}
}

// tokenizeQuoted scans '...' and "..." spans where the delimiter is escaped
// by doubling it.
func (lx *Lexer) tokenizeQuoted(start int, quote byte, kind TokenKind) Token {
	lx.pos++
	bodyStart := lx.pos
	for lx.pos < len(lx.s) {
		if lx.s[lx.pos] == quote {
			if lx.peekN(1) == quote {
				lx.pos += 2
				continue
			}
			body := lx.s[bodyStart:lx.pos]
			lx.pos++
			return Token{Kind: kind, Pos: start, End: lx.pos, Val: body}
		}
		lx.pos++
	}
	return Token{Kind: kind, Pos: start, End: lx.pos, Val: lx.s[bodyStart:]}
}

// tokenizeEscapeString scans E'...', where a backslash escapes the next byte
// and a doubled quote is an escaped quote.
func (lx *Lexer) tokenizeEscapeString(start int) Token {
	lx.pos += 2
	bodyStart := lx.pos
	for lx.pos < len(lx.s) {
		c := lx.s[lx.pos]
		switch {
		case c == '\\' && lx.pos+1 < len(lx.s):
			lx.pos += 2
		case c == '\'' && lx.peekN(1) == '\'':
			lx.pos += 2
		case c == '\'':
			body := lx.s[bodyStart:lx.pos]
			lx.pos++
			return Token{Kind: TokEscapeString, Pos: start, End: lx.pos, Val: body}
		default:
			lx.pos++
		}
	}
	return Token{Kind: TokEscapeString, Pos: start, End: lx.pos, Val: lx.s[bodyStart:]}
}

// tokenizeDollarString scans $tag$...$tag$. When the opening tag is not
// closed by a second '$' the dollar sign is returned as a one-byte token.
// When the closing tag is missing the body runs to the end of the input.
func (lx *Lexer) tokenizeDollarString(start int) Token {
	aux := start + 1
	valid := false
	for aux < len(lx.s) {
		c := lx.s[aux]
		if c == '$' {
			valid = true
			aux++
			break
		}
		if !isIdentChar(c) {
			break
		}
		aux++
	}
	if !valid {
		lx.pos = start + 1
		return Token{Kind: TokOther, Pos: start, End: lx.pos, Val: "$"}
	}
	tag := lx.s[start:aux]
	rest := lx.s[aux:]
	for i := 0; i+len(tag) <= len(rest); i++ {
		if rest[i:i+len(tag)] == tag {
			lx.pos = aux + i + len(tag)
			return Token{Kind: TokDollarString, Pos: start, End: lx.pos, Val: rest[:i], Tag: tag}
		}
	}
	lx.pos = len(lx.s)
	return Token{Kind: TokDollarString, Pos: start, End: lx.pos, Val: rest, Tag: tag}
}

// Tokenize returns all tokens of s, without the terminating TokNone.
func Tokenize(s string) []Token {
	lx := NewLexer(s)
	var out []Token
	for {
		tok := lx.Next()
		if tok.Kind == TokNone {
			return out
		}
		out = append(out, tok)
	}
}
