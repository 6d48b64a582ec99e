// Package pdftext pulls plain text out of PDF content streams with pdfcpu.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// ErrNoText is returned when a document yields only whitespace.
var ErrNoText = errors.New("pdf has no extractable text")

// Extractor implements notice.TextExtractor.
type Extractor struct {
	logger *zap.Logger
}

// New returns an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// ExtractText returns the text of every page in page order, one page per line
// group. Unreadable documents and documents without text are permanent errors.
func (e *Extractor) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", notice.Permanent("pdf read", errors.New("empty document"))
	}
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return "", notice.Permanent("pdf read", err)
	}

	pages := make([]string, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := pageText(pdfCtx, pageNr)
		if err != nil {
			e.logger.Debug("skipping unreadable page", zap.Int("page", pageNr), zap.Error(err))
			continue
		}
		if text != "" {
			pages = append(pages, text)
		}
	}

	out := strings.Join(pages, "\n")
	if strings.TrimSpace(out) == "" {
		return "", notice.Permanent("pdf text", ErrNoText)
	}
	e.logger.Debug("pdf text extracted",
		zap.Int("pages", pdfCtx.PageCount),
		zap.Int("chars", len([]rune(out))),
	)
	return out, nil
}

func pageText(pdfCtx *model.Context, pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return "", fmt.Errorf("page %d content: %w", pageNr, err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("page %d read: %w", pageNr, err)
	}
	return textFromStream(data, pageFonts(pdfCtx, pageNr)), nil
}

// font knows how to turn the bytes a text operator shows into text.
type font struct {
	toUnicode *cmap
	composite bool
	utf16     bool
}

func (f *font) decode(b []byte) string {
	switch {
	case f == nil:
		return latin1Text(b)
	case f.toUnicode != nil:
		return f.toUnicode.decode(b)
	case f.utf16:
		return utf16Text(b)
	case f.composite:
		return ""
	default:
		return latin1Text(b)
	}
}

// pageFonts resolves the page's font resources. Fonts that cannot be read
// are left out and fall back to byte-wise decoding.
func pageFonts(pdfCtx *model.Context, pageNr int) map[string]*font {
	pageDict, _, inherited, err := pdfCtx.PageDict(pageNr, false)
	if err != nil {
		return nil
	}
	var resources types.Dict
	if inherited != nil {
		resources = inherited.Resources
	}
	if obj, ok := pageDict.Find("Resources"); ok {
		if d, err := pdfCtx.DereferenceDict(obj); err == nil && d != nil {
			resources = d
		}
	}
	obj, ok := resources.Find("Font")
	if !ok {
		return nil
	}
	fontDicts, err := pdfCtx.DereferenceDict(obj)
	if err != nil {
		return nil
	}
	fonts := make(map[string]*font, len(fontDicts))
	for name, obj := range fontDicts {
		fd, err := pdfCtx.DereferenceDict(obj)
		if err != nil || fd == nil {
			continue
		}
		fonts[name] = loadFont(pdfCtx, fd)
	}
	return fonts
}

func loadFont(pdfCtx *model.Context, fd types.Dict) *font {
	f := &font{}
	if subtype := fd.NameEntry("Subtype"); subtype != nil && *subtype == "Type0" {
		f.composite = true
	}
	if enc := fd.NameEntry("Encoding"); enc != nil && (strings.Contains(*enc, "UCS2") || strings.Contains(*enc, "UTF16")) {
		f.utf16 = true
	}
	obj, ok := fd.Find("ToUnicode")
	if !ok {
		return f
	}
	sd, _, err := pdfCtx.DereferenceStreamDict(obj)
	if err != nil || sd == nil {
		return f
	}
	if err := sd.Decode(); err != nil {
		return f
	}
	f.toUnicode = parseCMap(sd.Content)
	return f
}

// kernSpace is the TJ adjustment, in thousandths of an em, past which a gap
// reads as a word break.
const kernSpace = 200

// textFromStream interprets the text operators of a content stream. Fonts
// are looked up by resource name; a missing font decodes bytes as Latin-1.
func textFromStream(data []byte, fonts map[string]*font) string {
	var (
		sb    strings.Builder
		stack []token
		cur   *font
		lastY float64
		haveY bool
	)
	show := func(b []byte) {
		sb.WriteString(cur.decode(b))
	}
	lastString := func() []byte {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].kind == tokString {
				return stack[i].raw
			}
		}
		return nil
	}
	operand := func(back int) (token, bool) {
		if len(stack) < back {
			return token{}, false
		}
		return stack[len(stack)-back], true
	}

	lx := newLexer(data)
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
		case "Tf":
			if name, ok := operand(2); ok && name.kind == tokName {
				cur = fonts[string(name.raw)]
			}
		case "Tj":
			show(lastString())
		case "'", `"`:
			sb.WriteByte('\n')
			show(lastString())
		case "TJ":
			open := len(stack)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].kind == tokArrayOpen {
					open = i
					break
				}
			}
			for _, el := range stack[min(open+1, len(stack)):] {
				switch {
				case el.kind == tokString:
					show(el.raw)
				case el.kind == tokNumber && el.num < -kernSpace:
					sb.WriteByte(' ')
				}
			}
		case "Td", "TD":
			if ty, ok := operand(1); ok && ty.kind == tokNumber && ty.num != 0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		case "Tm":
			if y, ok := operand(1); ok && y.kind == tokNumber {
				if haveY && y.num == lastY {
					sb.WriteByte(' ')
				} else {
					sb.WriteByte('\n')
				}
				lastY, haveY = y.num, true
			}
		case "T*", "ET":
			sb.WriteByte('\n')
		case "ID":
			lx.skipInlineImage()
		}
		stack = stack[:0]
	}
	return tidy(strings.ToValidUTF8(sb.String(), ""))
}

// tidy collapses runs of spaces, keeps line breaks, and drops control runes.
func tidy(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		var sb strings.Builder
		space := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				if !space && sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				space = true
			case unicode.IsPrint(r):
				sb.WriteRune(r)
				space = false
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n")
}
