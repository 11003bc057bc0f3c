// Package aacode parses the short protein-change codes found in somatic mutation
// calls, such as "R132H", "G12" or "fs".
package aacode

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrPositionRange is returned when a code's position does not fit an INT column.
var ErrPositionRange = errors.New("amino-acid position out of range")

// Code is a decomposed amino-acid change. Nil fields are absent.
type Code struct {
	Original *string // residue before the change
	Location *int    // 1-based protein position
	Mutated  *string // residue after the change, or a free-form annotation
}

// Parse splits code into its original residue, position and mutated residue.
//
// Characters before the first digit form the original residue, the digit run is
// the position and everything after that run forms the mutated residue. Only
// ASCII 0-9 count as digits. A code with no digit at all is a pure annotation
// (e.g. "fs"): only Mutated is set, to code.
//
// A position too large for a 32-bit column yields ErrPositionRange; the
// returned Code then carries the residues but no Location.
func Parse(code string) (Code, error) {
	if !hasDigit(code) {
		mut := code
		return Code{Mutated: &mut}, nil
	}

	const (
		inOriginal = iota
		inLocation
		inMutated
	)

	var orig, pos, mut []rune
	state := inOriginal
	for _, r := range code {
		digit := isDigit(r)
		switch {
		case state == inOriginal && digit:
			state = inLocation
			pos = append(pos, r)
		case state == inOriginal:
			orig = append(orig, r)
		case state == inLocation && digit:
			pos = append(pos, r)
		default:
			state = inMutated
			mut = append(mut, r)
		}
	}

	var c Code
	if len(orig) > 0 {
		s := string(orig)
		c.Original = &s
	}
	if len(mut) > 0 {
		s := string(mut)
		c.Mutated = &s
	}

	n, err := strconv.ParseInt(string(pos), 10, 32)
	if err != nil {
		return c, fmt.Errorf("%w: %q", ErrPositionRange, code)
	}
	loc := int(n)
	c.Location = &loc
	return c, nil
}

// Values returns the code as the three aa_loc, aa_norm, aa_mut column values,
// with nil for absent parts.
func (c Code) Values() []any {
	vals := []any{nil, nil, nil}
	if c.Location != nil {
		vals[0] = int64(*c.Location)
	}
	if c.Original != nil {
		vals[1] = *c.Original
	}
	if c.Mutated != nil {
		vals[2] = *c.Mutated
	}
	return vals
}

func hasDigit(s string) bool {
	for _, r := range s {
		if isDigit(r) {
			return true
		}
	}
	return false
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
