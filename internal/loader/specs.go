package loader

import (
	"strconv"

	"github.com/tdi-genomics/tdisql/internal/domain"
)

// Lookup resolves a natural key to a generated id: SELECT IDColumn FROM Table WHERE MatchColumn = ?
type Lookup struct {
	Table       string
	IDColumn    string
	MatchColumn string
}

// Lookups used by the TDI tables.
var (
	CancerTypeByAbbv = Lookup{Table: "Cancer_Types", IDColumn: "cancer_type_id", MatchColumn: "abbv"}
	PatientByName    = Lookup{Table: "Patients", IDColumn: "patient_id", MatchColumn: "name"}
	GeneByName       = Lookup{Table: "Genes", IDColumn: "gene_id", MatchColumn: "gene_name"}
	PlatformByName   = Lookup{Table: "Exp_Platforms", IDColumn: "platform_id", MatchColumn: "platform"}
	GroupByName      = Lookup{Table: "SGA_Unit_Group", IDColumn: "group_id", MatchColumn: "name"}
)

// ForeignKey replaces an input field with the id it refers to.
type ForeignKey struct {
	Field  int
	Column string
	Lookup Lookup
	// Nullable fields holding a null sentinel are inserted as NULL without a lookup.
	Nullable bool
	// Choose, when set, picks the column and lookup from the raw field value.
	Choose func(raw string) (string, Lookup)
}

func (fk ForeignKey) target(raw string) (string, Lookup) {
	if fk.Choose != nil {
		return fk.Choose(raw)
	}
	return fk.Column, fk.Lookup
}

// TableSpec describes how a delimited file maps onto one table.
type TableSpec struct {
	Table     string
	KeyColumn string
	Kinds     []FieldKind
	// Columns overrides header names by field position.
	Columns     map[int]string
	ForeignKeys []ForeignKey
	// Skip returns a non-empty reason for rows that must not be loaded.
	Skip func(fields []string) string
	// Fixed replaces field values by position before binding.
	Fixed            map[int]string
	FailFast         bool
	IgnoreDuplicates bool
}

// CancerTypesSpec loads name|abbv rows.
func CancerTypesSpec() TableSpec {
	return TableSpec{
		Table:     "Cancer_Types",
		KeyColumn: "cancer_type_id",
		Kinds:     []FieldKind{String, String},
	}
}

// GenesSpec loads gene_name|chromosome|start|end|strand|other rows. Genes
// already present are left alone.
func GenesSpec() TableSpec {
	return TableSpec{
		Table:            "Genes",
		KeyColumn:        "gene_id",
		Kinds:            []FieldKind{String, String, String, Raw, Raw, String},
		FailFast:         true,
		IgnoreDuplicates: true,
	}
}

// ExpPlatformsSpec loads platform|description rows.
func ExpPlatformsSpec() TableSpec {
	return TableSpec{
		Table:     "Exp_Platforms",
		KeyColumn: "platform_id",
		Kinds:     []FieldKind{String, String},
	}
}

// SGAUnitGroupsSpec loads name|cancer|description|members rows.
func SGAUnitGroupsSpec() TableSpec {
	return TableSpec{
		Table:     "SGA_Unit_Group",
		KeyColumn: "group_id",
		Kinds:     []FieldKind{String, Raw, String, String},
		ForeignKeys: []ForeignKey{
			{Field: 1, Column: "cancer_type_id", Lookup: CancerTypeByAbbv},
		},
	}
}

// PatientsSpec loads patient rows whose seventh field is a cancer abbreviation.
func PatientsSpec() TableSpec {
	return TableSpec{
		Table:     "Patients",
		KeyColumn: "patient_id",
		Kinds:     []FieldKind{String, String, String, String, String, String, Raw},
		ForeignKeys: []ForeignKey{
			{Field: 6, Column: "cancer_type_id", Lookup: CancerTypeByAbbv},
		},
		FailFast: true,
	}
}

// SomaticMutationsSpec loads mutation rows keyed by patient and gene name.
// The eighth field is an amino-acid code. Rows for unknown genes are skipped.
func SomaticMutationsSpec() TableSpec {
	return TableSpec{
		Table:     "Somatic_Mutations",
		KeyColumn: "sm_id",
		Kinds:     []FieldKind{Raw, Raw, String, String, String, Raw, Raw, AminoAcidCode, String, String},
		ForeignKeys: []ForeignKey{
			{Field: 0, Column: "patient_id", Lookup: PatientByName},
			{Field: 1, Column: "gene_id", Lookup: GeneByName},
		},
		Skip: func(fields []string) string {
			if fields[1] == "Unknown" || fields[1] == "unknown" {
				return ReasonUnknownGene
			}
			return ""
		},
		FailFast: true,
	}
}

// SCNAsSpec loads copy-number rows. Every reference may be null.
func SCNAsSpec() TableSpec {
	return TableSpec{
		Table:     "SCNAs",
		KeyColumn: "scna_id",
		Kinds:     []FieldKind{Raw, Raw, String, Raw, Raw},
		ForeignKeys: []ForeignKey{
			{Field: 0, Column: "patient_id", Lookup: PatientByName, Nullable: true},
			{Field: 1, Column: "gene_id", Lookup: GeneByName, Nullable: true},
			{Field: 4, Column: "platform_id", Lookup: PlatformByName, Nullable: true},
		},
		FailFast: true,
	}
}

// DEGsSpec loads differential expression rows; only the platform may be null.
func DEGsSpec() TableSpec {
	return TableSpec{
		Table:     "DEGs",
		KeyColumn: "deg_id",
		Kinds:     []FieldKind{Raw, Raw, String, Raw, String},
		ForeignKeys: []ForeignKey{
			{Field: 0, Column: "patient_id", Lookup: PatientByName},
			{Field: 1, Column: "gene_id", Lookup: GeneByName},
			{Field: 3, Column: "platform_id", Lookup: PlatformByName, Nullable: true},
		},
		FailFast: true,
	}
}

// TDIResultsSpec loads patient|driver|target|posterior|experiment rows. The
// driver column is resolved against Genes or SGA_Unit_Group according to kind,
// and the experiment field is replaced by experimentID.
func TDIResultsSpec(kind domain.DriverKind, experimentID int64) TableSpec {
	return TableSpec{
		Table:     "TDI_Results",
		KeyColumn: "tdi_id",
		Kinds:     []FieldKind{Raw, Raw, Raw, Raw, Raw},
		Columns:   map[int]string{4: "exp_id"},
		ForeignKeys: []ForeignKey{
			{Field: 0, Column: "patient_id", Lookup: PatientByName},
			{Field: 1, Choose: func(raw string) (string, Lookup) {
				if kind.ClassifyDriver(raw) == domain.DriverGroup {
					return domain.GroupDriver(0).Column(), GroupByName
				}
				return domain.GeneDriver(0).Column(), GeneByName
			}},
			{Field: 2, Column: "ge_gene_id", Lookup: GeneByName},
		},
		Fixed:    map[int]string{4: strconv.FormatInt(experimentID, 10)},
		FailFast: true,
	}
}
