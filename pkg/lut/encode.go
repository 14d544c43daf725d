package lut

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Binary layout, little-endian:
//
//	magic "DLUT" | version uint32
//	duration min, step float64 | duration count uint32
//	cumulative-time min, step float64 | cumulative-time count uint32
//	sentinel float64
//	count_d × count_c float64 cells, row-major
const (
	binaryMagic   = "DLUT"
	binaryVersion = 1
)

// ErrBadFormat is returned by ReadBinary for blobs it cannot decode.
var ErrBadFormat = errors.New("malformed table blob")

type header struct {
	Magic           [4]byte
	Version         uint32
	DurationMin     float64
	DurationStep    float64
	DurationCount   uint32
	CumulativeMin   float64
	CumulativeStep  float64
	CumulativeCount uint32
	Sentinel        float64
}

// WriteJSON writes t as an indented JSON document.
func WriteJSON(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// ReadJSON decodes a table written by WriteJSON.
func ReadJSON(r io.Reader) (*Table, error) {
	var t Table
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// WriteBinary writes t in the DLUT binary layout.
func WriteBinary(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	h := header{
		Version:         binaryVersion,
		DurationMin:     t.Duration.Min,
		DurationStep:    t.Duration.Step,
		DurationCount:   uint32(t.Duration.Count),
		CumulativeMin:   t.CumulativeTime.Min,
		CumulativeStep:  t.CumulativeTime.Step,
		CumulativeCount: uint32(t.CumulativeTime.Count),
		Sentinel:        t.Sentinel,
	}
	copy(h.Magic[:], binaryMagic)

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, t.Values); err != nil {
		return fmt.Errorf("write cells: %w", err)
	}
	return bw.Flush()
}

// ReadBinary decodes a blob written by WriteBinary.
func ReadBinary(r io.Reader) (*Table, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadFormat, err)
	}
	if string(h.Magic[:]) != binaryMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadFormat, h.Magic[:])
	}
	if h.Version != binaryVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, h.Version)
	}

	t := &Table{
		Duration:       Axis{Min: h.DurationMin, Step: h.DurationStep, Count: int(h.DurationCount)},
		CumulativeTime: Axis{Min: h.CumulativeMin, Step: h.CumulativeStep, Count: int(h.CumulativeCount)},
		Sentinel:       h.Sentinel,
	}
	if err := t.Duration.Validate(); err != nil {
		return nil, fmt.Errorf("%w: duration: %v", ErrBadFormat, err)
	}
	if err := t.CumulativeTime.Validate(); err != nil {
		return nil, fmt.Errorf("%w: cumulative time: %v", ErrBadFormat, err)
	}
	n := t.Duration.Count * t.CumulativeTime.Count
	if n > MaxCells {
		return nil, fmt.Errorf("%w: %d cells exceed limit %d", ErrBadFormat, n, MaxCells)
	}

	t.Values = make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, t.Values); err != nil {
		return nil, fmt.Errorf("%w: cells: %v", ErrBadFormat, err)
	}
	return t, nil
}

// WriteC writes t as a C header declaring the quantization constants, the
// sentinel and a static 2-D array. name prefixes every identifier.
// Values use the shortest decimal form that parses back to the same double.
func WriteC(w io.Writer, t *Table, name string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ident := cIdent(name)
	macro := strings.ToUpper(ident)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "/* Generated by dosimap. Do not edit. */\n")
	fmt.Fprintf(bw, "#ifndef %s_H\n#define %s_H\n\n", macro, macro)

	for _, d := range []struct {
		suffix string
		value  string
	}{
		{"DURATION_MIN", formatC(t.Duration.Min)},
		{"DURATION_STEP", formatC(t.Duration.Step)},
		{"DURATION_COUNT", strconv.Itoa(t.Duration.Count)},
		{"CUMULATIVE_TIME_MIN", formatC(t.CumulativeTime.Min)},
		{"CUMULATIVE_TIME_STEP", formatC(t.CumulativeTime.Step)},
		{"CUMULATIVE_TIME_COUNT", strconv.Itoa(t.CumulativeTime.Count)},
		{"SENTINEL", "(" + formatC(t.Sentinel) + ")"},
	} {
		fmt.Fprintf(bw, "#define %s_%s %s\n", macro, d.suffix, d.value)
	}

	fmt.Fprintf(bw, "\nstatic const double %s[%s_DURATION_COUNT][%s_CUMULATIVE_TIME_COUNT] = {\n",
		ident, macro, macro)
	cols := t.CumulativeTime.Count
	for i := 0; i < t.Duration.Count; i++ {
		bw.WriteString("    {")
		for j, v := range t.Values[i*cols : (i+1)*cols] {
			if j > 0 {
				bw.WriteString(", ")
			}
			bw.WriteString(formatC(v))
		}
		bw.WriteString("},\n")
	}
	fmt.Fprintf(bw, "};\n\n#endif /* %s_H */\n", macro)

	return bw.Flush()
}

func formatC(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// cIdent turns name into a valid C identifier.
func cIdent(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || r == '_'):
			b.WriteRune(r)
		case r < unicode.MaxASCII && unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "tds_lut"
	}
	if cKeywords[b.String()] {
		b.WriteString("_lut")
	}
	return b.String()
}

var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extern": true, "float": true, "for": true, "goto": true,
	"if": true, "inline": true, "int": true, "long": true, "register": true,
	"restrict": true, "return": true, "short": true, "signed": true, "sizeof": true,
	"static": true, "struct": true, "switch": true, "typedef": true, "union": true,
	"unsigned": true, "void": true, "volatile": true, "while": true,
}
