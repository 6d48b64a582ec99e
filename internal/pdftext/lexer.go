package pdftext

import (
	"bytes"
	"strconv"
)

type tokenKind int

const (
	tokOperator tokenKind = iota
	tokNumber
	tokName
	tokString
	tokArrayOpen
	tokArrayClose
	tokDictOpen
	tokDictClose
)

// token is one lexical element of a content stream or CMap. Strings carry
// their decoded bytes, so literal and hex forms look the same downstream.
type token struct {
	kind tokenKind
	raw  []byte
	num  float64
}

// lexer splits PDF content into tokens. It is tolerant: malformed input
// ends the stream rather than failing.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte) *lexer {
	return &lexer{data: data}
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (lx *lexer) next() (token, bool) {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		switch {
		case isSpace(c):
			lx.pos++
		case c == '%':
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
		case c == '(':
			lx.pos++
			return token{kind: tokString, raw: unescape(lx.literal())}, true
		case c == '<':
			if lx.peek(1) == '<' {
				lx.pos += 2
				return token{kind: tokDictOpen}, true
			}
			lx.pos++
			return token{kind: tokString, raw: lx.hex()}, true
		case c == '>':
			if lx.peek(1) == '>' {
				lx.pos += 2
				return token{kind: tokDictClose}, true
			}
			lx.pos++
		case c == '[':
			lx.pos++
			return token{kind: tokArrayOpen}, true
		case c == ']':
			lx.pos++
			return token{kind: tokArrayClose}, true
		case c == '{', c == '}', c == ')':
			lx.pos++
		case c == '/':
			lx.pos++
			return token{kind: tokName, raw: lx.regular()}, true
		default:
			word := lx.regular()
			if n, err := strconv.ParseFloat(string(word), 64); err == nil {
				return token{kind: tokNumber, raw: word, num: n}, true
			}
			return token{kind: tokOperator, raw: word}, true
		}
	}
	return token{}, false
}

func (lx *lexer) peek(off int) byte {
	if lx.pos+off < len(lx.data) {
		return lx.data[lx.pos+off]
	}
	return 0
}

func (lx *lexer) regular() []byte {
	start := lx.pos
	for lx.pos < len(lx.data) && !isSpace(lx.data[lx.pos]) && !isDelim(lx.data[lx.pos]) {
		lx.pos++
	}
	return lx.data[start:lx.pos]
}

// literal returns the escaped body of a (...) string; the opening paren is
// already consumed. Balanced inner parens are part of the string.
func (lx *lexer) literal() []byte {
	start := lx.pos
	depth := 1
	for lx.pos < len(lx.data) {
		switch lx.data[lx.pos] {
		case '\\':
			lx.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				body := lx.data[start:lx.pos]
				lx.pos++
				return body
			}
		}
		lx.pos++
	}
	return lx.data[start:min(lx.pos, len(lx.data))]
}

func (lx *lexer) hex() []byte {
	out := make([]byte, 0, 16)
	var hi byte
	half := false
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		if c == '>' {
			break
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage moves past the binary payload that follows an ID operator.
func (lx *lexer) skipInlineImage() {
	if lx.pos < len(lx.data) && isSpace(lx.data[lx.pos]) {
		lx.pos++
	}
	for {
		i := bytes.Index(lx.data[lx.pos:], []byte("EI"))
		if i < 0 {
			lx.pos = len(lx.data)
			return
		}
		at := lx.pos + i
		lx.pos = at + 2
		before := at == 0 || isSpace(lx.data[at-1])
		after := lx.pos >= len(lx.data) || isSpace(lx.data[lx.pos])
		if before && after {
			return
		}
	}
}

func unescape(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			out = append(out, raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b', 'f':
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			if c < '0' || c > '7' {
				out = append(out, c)
				continue
			}
			val := int(c - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			out = append(out, byte(val))
		}
	}
	return out
}
