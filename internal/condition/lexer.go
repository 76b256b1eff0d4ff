package condition

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokField
	tokString
	tokNumber
	tokKeyword // AND OR NOT CONTAINS ISBLANK IF
	tokOp      // = <> > < >= <=
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]bool{
	"AND":      true,
	"OR":       true,
	"NOT":      true,
	"CONTAINS": true,
	"ISBLANK":  true,
	"IF":       true,
}

func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '[':
			start := i
			i++
			for i < len(runes) && runes[i] != ']' {
				i++
			}
			if i >= len(runes) {
				return nil, errAt(start, "unterminated field reference")
			}
			name := strings.TrimSpace(string(runes[start+1 : i]))
			if name == "" {
				return nil, errAt(start, "empty field reference")
			}
			toks = append(toks, token{tokField, name, start})
			i++
		case r == '"' || r == '\'':
			quote := r
			start := i
			i++
			var sb strings.Builder
			for i < len(runes) && runes[i] != quote {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
				}
				sb.WriteRune(runes[i])
				i++
			}
			if i >= len(runes) {
				return nil, errAt(start, "unterminated string literal")
			}
			toks = append(toks, token{tokString, sb.String(), start})
			i++
		case r == '=':
			toks = append(toks, token{tokOp, "=", i})
			i++
		case r == '<':
			if i+1 < len(runes) && runes[i+1] == '>' {
				toks = append(toks, token{tokOp, "<>", i})
				i += 2
			} else if i+1 < len(runes) && runes[i+1] == '=' {
				toks = append(toks, token{tokOp, "<=", i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, "<", i})
				i++
			}
		case r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				toks = append(toks, token{tokOp, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, ">", i})
				i++
			}
		case unicode.IsDigit(r) || r == '-' || r == '.':
			start := i
			if r == '-' {
				i++
				if i >= len(runes) || (!unicode.IsDigit(runes[i]) && runes[i] != '.') {
					return nil, errAt(start, "unexpected character '-'")
				}
			}
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(runes[start:i]), start})
		case unicode.IsLetter(r):
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			word := strings.ToUpper(string(runes[start:i]))
			if !keywords[word] {
				return nil, errAt(start, "unknown keyword or function %q", string(runes[start:i]))
			}
			toks = append(toks, token{tokKeyword, word, start})
		default:
			return nil, errAt(i, "unexpected character %q", string(r))
		}
	}
	toks = append(toks, token{tokEOF, "", len(runes)})
	return toks, nil
}
