// Package domain contains the entities and value types of the TDI cancer-genomics
// store: patients, genes, somatic alterations and the driver-target interactions
// (TDI) linking a driver alteration to its differentially expressed targets.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Lookup and load errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAmbiguous     = errors.New("ambiguous match")
	ErrFatalInsert   = errors.New("fatal insert failure")
	ErrInvalidHeader = errors.New("invalid header")
)

// MutationClass restricts driver queries to a class of somatic mutation.
type MutationClass string

const (
	MutationAll           MutationClass = "all"
	MutationSynonymous    MutationClass = "synonymous"
	MutationNonsynonymous MutationClass = "nonsynonymous"
)

// Somatic_Mutations.mut_type values matched by the synonymous/nonsynonymous classes.
const (
	SynonymousSNV    = "synonymous SNV"
	NonsynonymousSNV = "nonsynonymous SNV"
)

// DeletionScore is the GISTIC score marking a deep deletion in the SCNAs table.
const DeletionScore = -2

// IsValid reports whether c is one of the known classes.
func (c MutationClass) IsValid() bool {
	switch c {
	case MutationAll, MutationSynonymous, MutationNonsynonymous:
		return true
	default:
		return false
	}
}

// String returns the string representation of the class.
func (c MutationClass) String() string {
	return string(c)
}

// MutType returns the mut_type value the class filters on, or "" for MutationAll.
func (c MutationClass) MutType() string {
	switch c {
	case MutationSynonymous:
		return SynonymousSNV
	case MutationNonsynonymous:
		return NonsynonymousSNV
	default:
		return ""
	}
}

// ParseMutationClass accepts the class names and the short forms "syn" and "nonsyn".
// The boolean is false when s was not recognised; the returned class is then MutationAll.
func ParseMutationClass(s string) (MutationClass, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return MutationAll, true
	case "syn", "synonymous":
		return MutationSynonymous, true
	case "nonsyn", "nonsynonymous":
		return MutationNonsynonymous, true
	default:
		return MutationAll, false
	}
}

// DriverKind selects which table a TDI driver column refers to.
type DriverKind string

const (
	DriverGene  DriverKind = "gene"
	DriverGroup DriverKind = "group"
	// DriverAuto classifies each row by the driver name, the way legacy TDI
	// exports did: names containing "group" or "unit" are SGA unit/groups.
	DriverAuto DriverKind = "auto"
)

// IsValid reports whether k is a known driver kind.
func (k DriverKind) IsValid() bool {
	switch k {
	case DriverGene, DriverGroup, DriverAuto:
		return true
	default:
		return false
	}
}

// ParseDriverKind parses a driver kind flag value.
func ParseDriverKind(s string) (DriverKind, error) {
	k := DriverKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return DriverGene, nil
	}
	if !k.IsValid() {
		return "", NewValidationError("driver_kind", "must be one of gene, group, auto", s)
	}
	return k, nil
}

// ClassifyDriver resolves DriverAuto for a single driver name.
func (k DriverKind) ClassifyDriver(name string) DriverKind {
	if k != DriverAuto {
		return k
	}
	if strings.Contains(name, "group") || strings.Contains(name, "unit") {
		return DriverGroup
	}
	return DriverGene
}

// DriverRef identifies a driver: either an individual gene or an SGA unit/group.
// Exactly one of the two identifiers is meaningful, as reported by Kind.
type DriverRef struct {
	Kind DriverKind
	ID   int64
}

// GeneDriver returns a reference to a gene driver.
func GeneDriver(id int64) DriverRef {
	return DriverRef{Kind: DriverGene, ID: id}
}

// GroupDriver returns a reference to an SGA unit/group driver.
func GroupDriver(id int64) DriverRef {
	return DriverRef{Kind: DriverGroup, ID: id}
}

// Column returns the TDI_Results column holding this reference.
func (r DriverRef) Column() string {
	if r.Kind == DriverGroup {
		return "gt_unit_group_id"
	}
	return "gt_gene_id"
}

// String implements fmt.Stringer.
func (r DriverRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}
