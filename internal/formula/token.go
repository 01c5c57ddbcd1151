package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenTrue
	tokenFalse
	tokenNull
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenPercent
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	num  float64
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}
	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return token{kind: tokenLParen, pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokenRParen, pos: start}, nil
	case '+':
		l.pos++
		return token{kind: tokenPlus, pos: start}, nil
	case '-':
		l.pos++
		return token{kind: tokenMinus, pos: start}, nil
	case '*':
		l.pos++
		return token{kind: tokenStar, pos: start}, nil
	case '/':
		l.pos++
		return token{kind: tokenSlash, pos: start}, nil
	case '%':
		l.pos++
		return token{kind: tokenPercent, pos: start}, nil
	case '=':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokenEq, pos: start}, nil
		}
		return token{}, fmt.Errorf("unexpected '=' at %d", start)
	case '!':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokenNeq, pos: start}, nil
		}
		l.pos++
		return token{kind: tokenNot, pos: start}, nil
	case '<':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokenLte, pos: start}, nil
		}
		l.pos++
		return token{kind: tokenLt, pos: start}, nil
	case '>':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokenGte, pos: start}, nil
		}
		l.pos++
		return token{kind: tokenGt, pos: start}, nil
	case '&':
		if l.peekAt(1) == '&' {
			l.pos += 2
			return token{kind: tokenAnd, pos: start}, nil
		}
		return token{}, fmt.Errorf("unexpected '&' at %d", start)
	case '|':
		if l.peekAt(1) == '|' {
			l.pos += 2
			return token{kind: tokenOr, pos: start}, nil
		}
		return token{}, fmt.Errorf("unexpected '|' at %d", start)
	case '\'', '"':
		return l.lexString(ch)
	}

	if ch >= '0' && ch <= '9' || ch == '.' {
		return l.lexNumber()
	}
	if isIdentStart(ch) {
		return l.lexIdent()
	}
	return token{}, fmt.Errorf("unexpected character %q at %d", ch, start)
}

func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch ch {
		case '\\':
			if l.pos+1 >= len(l.input) {
				return token{}, fmt.Errorf("unterminated escape at %d", l.pos)
			}
			next := l.input[l.pos+1]
			switch next {
			case '\\', '\'', '"':
				sb.WriteByte(next)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return token{}, fmt.Errorf("unsupported escape \\%c at %d", next, l.pos)
			}
			l.pos += 2
		case quote:
			l.pos++
			return token{kind: tokenString, text: sb.String(), pos: start}, nil
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}
	return token{}, fmt.Errorf("unterminated string starting at %d", start)
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if (ch >= '0' && ch <= '9') || ch == '.' {
			l.pos++
			continue
		}
		break
	}
	text := l.input[start:l.pos]
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("invalid number %q at %d", text, start)
	}
	return token{kind: tokenNumber, num: num, pos: start}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	text := l.input[start:l.pos]
	switch strings.ToLower(text) {
	case "true":
		return token{kind: tokenTrue, pos: start}, nil
	case "false":
		return token{kind: tokenFalse, pos: start}, nil
	case "null", "none":
		return token{kind: tokenNull, pos: start}, nil
	case "and":
		return token{kind: tokenAnd, pos: start}, nil
	case "or":
		return token{kind: tokenOr, pos: start}, nil
	case "not":
		return token{kind: tokenNot, pos: start}, nil
	}
	return token{kind: tokenIdent, text: text, pos: start}, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
