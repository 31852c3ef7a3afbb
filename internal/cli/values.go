package cli

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/calvinalkan/docpager/pkg/pager"
)

// parseAssignment splits "field=value" and parses the value. With raw set,
// the value is always a string.
func parseAssignment(arg string, raw bool) (string, any, error) {
	field, value, ok := strings.Cut(arg, "=")
	if !ok || field == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrBadAssignment, arg)
	}

	if raw {
		return field, value, nil
	}

	v, err := parseValue(value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", field, err)
	}

	return field, v, nil
}

// parseValue guesses the type of a command line value:
//
//	null            nil
//	true, false     bool
//	42, -7          int64
//	1.5, 2e3        float64
//	0xdeadbeef      []byte
//	"quoted"        string (Go escapes allowed)
//	anything else   string
func parseValue(s string) (any, error) {
	switch s {
	case "null":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return nil, fmt.Errorf("bad quoted string %s: %w", s, err)
		}

		return unquoted, nil
	}

	if hexDigits, ok := strings.CutPrefix(s, "0x"); ok {
		b, err := hex.DecodeString(hexDigits)
		if err != nil {
			return nil, fmt.Errorf("bad hex bytes %s: %w", s, err)
		}

		return b, nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f, nil
	}

	return s, nil
}

// formatValue renders a decoded value in the syntax parseValue accepts.
// Unsigned integers read back as signed.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eENI") {
			s += ".0"
		}

		return s
	default:
		return fmt.Sprint(v)
	}
}

// jsonValue converts a decoded value into something encoding/json accepts.
func jsonValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}

	return v
}

// formatDocument renders id followed by the sorted fields on one line.
func formatDocument(doc *pager.Document) (string, error) {
	var b strings.Builder

	b.WriteString(strconv.FormatUint(uint64(doc.ID()), 10))

	for _, field := range doc.Fields() {
		v, _, err := doc.Get(field)
		if err != nil {
			return "", fmt.Errorf("document %d: %w", doc.ID(), err)
		}

		b.WriteString(" ")
		b.WriteString(field)
		b.WriteString("=")
		b.WriteString(formatValue(v))
	}

	return b.String(), nil
}

func parseID(s string) (pager.DocID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}

	return pager.DocID(id), nil
}

// splitLine splits a shell line on spaces. Double-quoted sections may
// contain spaces; the quotes are kept so parseValue sees a quoted string.
func splitLine(line string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		quoted  bool
		escaped bool
		inField bool
	)

	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t'):
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()

				inField = false
			}

			continue
		}

		cur.WriteRune(r)

		inField = true
	}

	if quoted {
		return nil, ErrUnterminatedArg
	}

	if inField {
		fields = append(fields, cur.String())
	}

	return fields, nil
}
