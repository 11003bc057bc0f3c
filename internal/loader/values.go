package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tdi-genomics/tdisql/pkg/aacode"
)

// FieldKind tells the loader how to turn a raw input field into column values.
type FieldKind int

const (
	// String fields are text columns.
	String FieldKind = iota
	// Raw fields are numbers or already-resolved keys.
	Raw
	// AminoAcidCode fields expand into the aa_loc, aa_norm and aa_mut columns.
	AminoAcidCode
)

// Width is the number of columns a field of this kind occupies.
func (k FieldKind) Width() int {
	if k == AminoAcidCode {
		return 3
	}
	return 1
}

// IsNull reports whether a raw field is one of the null sentinels.
// Only the exact spellings "null" and "NULL" count.
func IsNull(field string) bool {
	return field == "null" || field == "NULL"
}

// FormatInsertValues renders fields as the literal value list of an
// INSERT ... VALUES (...) statement. With includeAutoKey a leading NULL stands
// in for the auto-assigned primary key.
func FormatInsertValues(fields []string, kinds []FieldKind, includeAutoKey bool) string {
	var parts []string
	if includeAutoKey {
		parts = append(parts, "NULL")
	}

	for i, field := range fields {
		kind := String
		if i < len(kinds) {
			kind = kinds[i]
		}

		if IsNull(field) {
			for j := 0; j < kind.Width(); j++ {
				parts = append(parts, "NULL")
			}
			continue
		}

		switch kind {
		case Raw:
			parts = append(parts, field)
		case AminoAcidCode:
			// positions out of range render as NULL; the loader rejects such rows first
			code, _ := aacode.Parse(field)
			parts = append(parts, formatInt(code.Location), quoteOrNull(code.Original), quoteOrNull(code.Mutated))
		default:
			parts = append(parts, quote(field))
		}
	}

	return strings.Join(parts, ",")
}

// BindValues converts fields into statement arguments, one per column.
func BindValues(fields []string, kinds []FieldKind) []any {
	args := make([]any, 0, len(fields)+2)
	for i, field := range fields {
		kind := String
		if i < len(kinds) {
			kind = kinds[i]
		}

		if IsNull(field) {
			for j := 0; j < kind.Width(); j++ {
				args = append(args, nil)
			}
			continue
		}

		switch kind {
		case Raw:
			args = append(args, rawValue(field))
		case AminoAcidCode:
			code, _ := aacode.Parse(field)
			args = append(args, code.Values()...)
		default:
			args = append(args, field)
		}
	}
	return args
}

// CheckAminoAcidCodes returns the first amino-acid field that does not parse.
func CheckAminoAcidCodes(fields []string, kinds []FieldKind) error {
	for i, field := range fields {
		if i >= len(kinds) || kinds[i] != AminoAcidCode || IsNull(field) {
			continue
		}
		if _, err := aacode.Parse(field); err != nil {
			return fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return nil
}

// rawValue binds numeric text as a number and anything else unchanged.
func rawValue(field string) any {
	if n, err := strconv.ParseInt(field, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return f
	}
	return field
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteOrNull(s *string) string {
	if s == nil {
		return "NULL"
	}
	return quote(*s)
}

func formatInt(n *int) string {
	if n == nil {
		return "NULL"
	}
	return strconv.Itoa(*n)
}
