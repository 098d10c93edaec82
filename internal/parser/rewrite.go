package parser

import (
	"strconv"
	"strings"
)

// Parsed is the result of rewriting one statement.
type Parsed struct {
	Original string
	Text     string
	// Names lists the distinct placeholder names in ordinal order: Names[0]
	// has ordinal 1.
	Names []string
}

// Ordinal returns the 1-based ordinal of name, or 0 when the statement does
// not reference it.
func (p *Parsed) Ordinal(name string) int {
	for i, n := range p.Names {
		if n == name {
			return i + 1
		}
	}
	return 0
}

// DollarPlaceholder renders ordinal n as $n.
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// FoldName case-folds an unquoted identifier: ASCII letters are lowered,
// everything else is kept.
func FoldName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Rewrite replaces every :name placeholder of query with placeholder(ordinal).
// Distinct names get ordinals 1, 2, ... in order of first occurrence; repeated
// names reuse their ordinal. A nil placeholder renders $n.
func Rewrite(query string, placeholder func(int) string) *Parsed {
	if placeholder == nil {
		placeholder = DollarPlaceholder
	}
	p := &Parsed{Original: query}
	ordinals := make(map[string]int)

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	lx := NewLexer(query)
	for {
		tok := lx.Next()
		switch tok.Kind {
		case TokNone:
			p.Text = sb.String()
			return p
		case TokBindVar:
			name := FoldName(tok.Val)
			n, ok := ordinals[name]
			if !ok {
				p.Names = append(p.Names, name)
				n = len(p.Names)
				ordinals[name] = n
			}
			sb.WriteString(placeholder(n))
		case TokString:
			sb.WriteByte('\'')
			sb.WriteString(tok.Val)
			sb.WriteByte('\'')
		case TokEscapeString:
			sb.WriteString("E'")
			sb.WriteString(tok.Val)
			sb.WriteByte('\'')
		case TokQuotedIdent:
			sb.WriteByte('"')
			sb.WriteString(tok.Val)
			sb.WriteByte('"')
		case TokDollarString:
			sb.WriteString(tok.Tag)
			sb.WriteString(tok.Val)
			sb.WriteString(tok.Tag)
		default:
			sb.WriteString(query[tok.Pos:tok.End])
		}
	}
}
