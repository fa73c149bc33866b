package parse

import (
	"bytes"
	"io"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// textFragment is one positioned run of text from a page content
// stream. Positions come from the text matrix; units are PDF points.
type textFragment struct {
	x, y float64
	text string
}

// rowYTolerance groups fragments into the same visual row. Bulletin
// cell baselines within a row differ by well under two points.
const rowYTolerance = 2.0

// extractPageRows pulls the text fragments of one page and groups them
// into rows of cells, top to bottom, left to right.
func extractPageRows(ctx *pdfmodel.Context, pageNr int) [][]string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return nil
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return nil
	}
	return fragmentsToRows(extractFragments(data))
}

// fragmentsToRows sorts fragments top-down and buckets them into rows
// by baseline, then left-to-right into cells. Fragments emitted at the
// same position are continuations of one cell and get concatenated.
func fragmentsToRows(frags []textFragment) [][]string {
	if len(frags) == 0 {
		return nil
	}
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].y != frags[j].y {
			return frags[i].y > frags[j].y
		}
		return frags[i].x < frags[j].x
	})

	var rows [][]string
	var cells []string
	rowY := frags[0].y
	lastX := frags[0].x - 10

	flush := func() {
		if len(cells) > 0 {
			rows = append(rows, cells)
			cells = nil
		}
	}

	for _, f := range frags {
		text := CleanText(f.text)
		if rowY-f.y > rowYTolerance {
			flush()
			rowY = f.y
			lastX = f.x - 10
		}
		if text == "" {
			continue
		}
		if len(cells) > 0 && f.x-lastX < 1.0 {
			cells[len(cells)-1] = CleanText(cells[len(cells)-1] + " " + text)
		} else {
			cells = append(cells, text)
		}
		lastX = f.x
	}
	flush()
	return rows
}

// extractFragments walks the content stream's text operators, tracking
// the line position through Tm/Td/TD/TL/T* so each shown string can be
// placed. Graphics operators outside the text machinery are ignored.
func extractFragments(stream []byte) []textFragment {
	var (
		frags   []textFragment
		nums    []float64
		strs    [][]byte
		lineX   float64
		lineY   float64
		leading float64
	)

	emit := func(raw []byte) {
		text := decodePDFString(raw)
		if text == "" {
			return
		}
		if n := len(frags); n > 0 && frags[n-1].x == lineX && frags[n-1].y == lineY {
			frags[n-1].text += text
			return
		}
		frags = append(frags, textFragment{x: lineX, y: lineY, text: text})
	}

	reset := func() {
		nums = nums[:0]
		strs = strs[:0]
	}

	i := 0
	for i < len(stream) {
		c := stream[i]
		switch {
		case c == '(':
			raw, next := readPDFString(stream, i)
			strs = append(strs, raw)
			i = next
		case c == '<' && i+1 < len(stream) && stream[i+1] == '<':
			i += 2 // dict open, operands inside are irrelevant here
		case c == '<':
			raw, next := readHexString(stream, i)
			strs = append(strs, raw)
			i = next
		case c == '[' || c == ']' || c == '{' || c == '}':
			i++
		case c == '/':
			i++
			for i < len(stream) && !isPDFDelim(stream[i]) {
				i++
			}
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(stream) && !isPDFDelim(stream[i]) {
				i++
			}
			if v, err := strconv.ParseFloat(string(stream[start:i]), 64); err == nil {
				nums = append(nums, v)
			}
		case isPDFSpace(c):
			i++
		default:
			start := i
			for i < len(stream) && !isPDFDelim(stream[i]) {
				i++
			}
			switch string(stream[start:i]) {
			case "BT":
				lineX, lineY, leading = 0, 0, 0
			case "Tm":
				if len(nums) >= 6 {
					lineX = nums[len(nums)-2]
					lineY = nums[len(nums)-1]
				}
			case "Td":
				if len(nums) >= 2 {
					lineX += nums[len(nums)-2]
					lineY += nums[len(nums)-1]
				}
			case "TD":
				if len(nums) >= 2 {
					lineX += nums[len(nums)-2]
					lineY += nums[len(nums)-1]
					leading = -nums[len(nums)-1]
				}
			case "TL":
				if len(nums) >= 1 {
					leading = nums[len(nums)-1]
				}
			case "T*":
				lineY -= leading
			case "Tj":
				for _, s := range strs {
					emit(s)
				}
			case "'", "\"":
				lineY -= leading
				for _, s := range strs {
					emit(s)
				}
			case "TJ":
				var joined bytes.Buffer
				for _, s := range strs {
					joined.Write(s)
				}
				emit(joined.Bytes())
			}
			reset()
		}
	}
	return frags
}

// readPDFString reads a parenthesized string literal starting at
// stream[i] == '(' and returns its raw (still escaped) bytes plus the
// index after the closing paren. Parens nest per the PDF spec.
func readPDFString(stream []byte, i int) ([]byte, int) {
	depth := 0
	start := i + 1
	for ; i < len(stream); i++ {
		switch stream[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return stream[start:i], i + 1
			}
		}
	}
	return stream[start:], len(stream)
}

// readHexString reads <hex digits> and returns the decoded bytes plus
// the index after '>'. An odd final digit is padded with zero.
func readHexString(stream []byte, i int) ([]byte, int) {
	var out []byte
	var hi byte
	haveHi := false
	i++
	for ; i < len(stream); i++ {
		c := stream[i]
		if c == '>' {
			i++
			break
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	if haveHi {
		out = append(out, hi<<4)
	}
	return out, i
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

func isPDFSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	if isPDFSpace(c) {
		return true
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// decodePDFString resolves backslash escapes, including octal codes.
func decodePDFString(raw []byte) string {
	var sb bytes.Buffer
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		case '\n':
			// line continuation
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}
