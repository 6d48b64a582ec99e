package pdftext

import (
	"unicode/utf16"
	"unicode/utf8"
)

// maxRangeSpan bounds a single bfrange so a hostile CMap cannot allocate
// the whole code space.
const maxRangeSpan = 1 << 16

type codeRange struct {
	lo, hi []byte
}

// cmap is a parsed ToUnicode CMap: code space ranges plus the glyph code
// to text mapping.
type cmap struct {
	space []codeRange
	chars map[uint32]string
}

func parseCMap(data []byte) *cmap {
	cm := &cmap{chars: make(map[uint32]string)}
	lx := newLexer(data)
	var stack []token
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			stack = append(stack, tok)
			continue
		}
		switch string(tok.raw) {
		case "endcodespacerange":
			strs := stringsOf(stack)
			for i := 0; i+1 < len(strs); i += 2 {
				if len(strs[i]) > 0 && len(strs[i]) == len(strs[i+1]) {
					cm.space = append(cm.space, codeRange{lo: strs[i], hi: strs[i+1]})
				}
			}
		case "endbfchar":
			strs := stringsOf(stack)
			for i := 0; i+1 < len(strs); i += 2 {
				cm.chars[code(strs[i])] = utf16Text(strs[i+1])
			}
		case "endbfrange":
			cm.addRanges(stack)
		}
		stack = stack[:0]
	}
	return cm
}

func (cm *cmap) addRanges(stack []token) {
	for i := 0; i+2 < len(stack); {
		if stack[i].kind != tokString || stack[i+1].kind != tokString {
			i++
			continue
		}
		lo, hi := code(stack[i].raw), code(stack[i+1].raw)
		if hi < lo || hi-lo >= maxRangeSpan {
			hi = lo
		}
		dst := stack[i+2]
		switch dst.kind {
		case tokString:
			base := append([]byte(nil), dst.raw...)
			for k := uint32(0); k <= hi-lo; k++ {
				cm.chars[lo+k] = utf16Text(offsetLast(base, k))
			}
			i += 3
		case tokArrayOpen:
			j := i + 3
			c := lo
			for ; j < len(stack) && stack[j].kind != tokArrayClose; j++ {
				if stack[j].kind == tokString && c <= hi {
					cm.chars[c] = utf16Text(stack[j].raw)
					c++
				}
			}
			i = j + 1
		default:
			i += 3
		}
	}
}

// decode maps a shown string through the CMap. Codes outside the code space
// consume one byte; unmapped codes produce nothing.
func (cm *cmap) decode(b []byte) string {
	var out []rune
	for i := 0; i < len(b); {
		n := cm.width(b[i:])
		if text, ok := cm.chars[code(b[i:i+n])]; ok {
			out = append(out, []rune(text)...)
		}
		i += n
	}
	return string(out)
}

func (cm *cmap) width(b []byte) int {
	for _, r := range cm.space {
		n := len(r.lo)
		if n > len(b) {
			continue
		}
		inside := true
		for k := 0; k < n; k++ {
			if b[k] < r.lo[k] || b[k] > r.hi[k] {
				inside = false
				break
			}
		}
		if inside {
			return n
		}
	}
	if len(cm.space) > 0 && len(cm.space[0].lo) <= len(b) {
		return len(cm.space[0].lo)
	}
	return 1
}

func stringsOf(stack []token) [][]byte {
	out := make([][]byte, 0, len(stack))
	for _, tok := range stack {
		if tok.kind == tokString {
			out = append(out, tok.raw)
		}
	}
	return out
}

func code(b []byte) uint32 {
	var c uint32
	for _, x := range b {
		c = c<<8 | uint32(x)
	}
	return c
}

// offsetLast adds delta to the big-endian value in b, returning a copy.
func offsetLast(b []byte, delta uint32) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0 && delta > 0; i-- {
		sum := uint32(out[i]) + delta
		out[i] = byte(sum)
		delta = sum >> 8
	}
	return out
}

// utf16Text decodes big-endian UTF-16, the encoding CMap destinations use.
func utf16Text(b []byte) string {
	if len(b)%2 == 1 {
		b = append([]byte{0}, b...)
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return string(utf16.Decode(units))
}

// latin1Text reads a simple-font string. UTF-8 runs written by sloppy
// generators are kept as they are.
func latin1Text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out := make([]rune, len(b))
	for i, c := range b {
		out[i] = rune(c)
	}
	return string(out)
}
