package sandbox

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokNewline
	tokIdent
	tokInt
	tokFloat
	tokString
	tokKeyword

	tokAssign   // =
	tokPlus     // +
	tokMinus    // -
	tokStar     // *
	tokSlash    // /
	tokPercent  // %
	tokEq       // ==
	tokNeq      // !=
	tokLt       // <
	tokLte      // <=
	tokGt       // >
	tokGte      // >=
	tokAnd      // && or "and"
	tokOr       // || or "or"
	tokNot      // ! or "not"
	tokLParen   // (
	tokRParen   // )
	tokLBracket // [
	tokRBracket // ]
	tokLBrace   // {
	tokRBrace   // }
	tokComma    // ,
	tokColon    // :
	tokDot      // .
)

var keywords = map[string]bool{
	"if": true, "else": true, "for": true, "in": true,
	"true": true, "false": true, "null": true,
}

type token struct {
	typ  tokenType
	text string
	line int
}

func (t token) String() string {
	if t.typ == tokEOF {
		return "end of input"
	}
	if t.typ == tokNewline {
		return "newline"
	}
	return fmt.Sprintf("%q", t.text)
}

// lex tokenizes a source fragment. Newlines and semicolons both produce
// statement separators; '#' starts a line comment.
func lex(source string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	emit := func(typ tokenType, text string) { toks = append(toks, token{typ, text, line}) }

	for i < len(source) {
		c := source[i]
		switch {
		case c == '\n':
			emit(tokNewline, "\n")
			line++
			i++
		case c == ';':
			emit(tokNewline, ";")
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		case c == '"' || c == '\'':
			s, n, err := lexString(source[i:], line)
			if err != nil {
				return nil, err
			}
			emit(tokString, s)
			i += n
		case c >= '0' && c <= '9':
			start := i
			isFloat := false
			for i < len(source) && (isDigit(source[i]) || source[i] == '.' || source[i] == '_') {
				if source[i] == '.' {
					if isFloat || i+1 >= len(source) || !isDigit(source[i+1]) {
						break
					}
					isFloat = true
				}
				i++
			}
			text := strings.ReplaceAll(source[start:i], "_", "")
			if isFloat {
				emit(tokFloat, text)
			} else {
				emit(tokInt, text)
			}
		case isIdentStart(rune(c)):
			start := i
			for i < len(source) {
				r, n := utf8.DecodeRuneInString(source[i:])
				if !isIdentPart(r) {
					break
				}
				i += n
			}
			word := source[start:i]
			switch word {
			case "and":
				emit(tokAnd, word)
			case "or":
				emit(tokOr, word)
			case "not":
				emit(tokNot, word)
			default:
				if keywords[word] {
					emit(tokKeyword, word)
				} else {
					emit(tokIdent, word)
				}
			}
		default:
			typ, text, n, err := lexOperator(source[i:], line)
			if err != nil {
				return nil, err
			}
			emit(typ, text)
			i += n
		}
	}
	emit(tokEOF, "")
	return toks, nil
}

func lexOperator(s string, line int) (tokenType, string, int, error) {
	two := ""
	if len(s) >= 2 {
		two = s[:2]
	}
	switch two {
	case "==":
		return tokEq, two, 2, nil
	case "!=":
		return tokNeq, two, 2, nil
	case "<=":
		return tokLte, two, 2, nil
	case ">=":
		return tokGte, two, 2, nil
	case "&&":
		return tokAnd, two, 2, nil
	case "||":
		return tokOr, two, 2, nil
	}
	switch s[0] {
	case '=':
		return tokAssign, "=", 1, nil
	case '+':
		return tokPlus, "+", 1, nil
	case '-':
		return tokMinus, "-", 1, nil
	case '*':
		return tokStar, "*", 1, nil
	case '/':
		return tokSlash, "/", 1, nil
	case '%':
		return tokPercent, "%", 1, nil
	case '<':
		return tokLt, "<", 1, nil
	case '>':
		return tokGt, ">", 1, nil
	case '!':
		return tokNot, "!", 1, nil
	case '(':
		return tokLParen, "(", 1, nil
	case ')':
		return tokRParen, ")", 1, nil
	case '[':
		return tokLBracket, "[", 1, nil
	case ']':
		return tokRBracket, "]", 1, nil
	case '{':
		return tokLBrace, "{", 1, nil
	case '}':
		return tokRBrace, "}", 1, nil
	case ',':
		return tokComma, ",", 1, nil
	case ':':
		return tokColon, ":", 1, nil
	case '.':
		return tokDot, ".", 1, nil
	}
	return tokEOF, "", 0, fmt.Errorf("line %d: unexpected character %q", line, s[0])
}

// lexString consumes a quoted string literal (single or double quotes) with
// backslash escapes, returning the decoded text and consumed byte count.
func lexString(s string, line int) (string, int, error) {
	quote := s[0]
	var sb strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch c {
		case quote:
			return sb.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("line %d: unterminated escape", line)
			}
			switch s[i+1] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			default:
				sb.WriteByte(s[i+1])
			}
			i += 2
		case '\n':
			return "", 0, fmt.Errorf("line %d: unterminated string literal", line)
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("line %d: unterminated string literal", line)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
