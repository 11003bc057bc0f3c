package loader_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdi-genomics/tdisql/internal/database"
	"github.com/tdi-genomics/tdisql/internal/database/dbtest"
	"github.com/tdi-genomics/tdisql/internal/domain"
	"github.com/tdi-genomics/tdisql/internal/loader"
)

const (
	cancerTypesFile = "name\tabbv\nGlioblastoma\tGBM\nBreast invasive carcinoma\tBRCA\n"
	genesFile       = "gene_name\tchromosome\tstart\tend\tstrand\tother\n" +
		"TP53\t17\t7565097\t7590856\t-\tnull\n" +
		"KRAS\t12\t25358180\t25403854\t-\tnull\n" +
		"IDH1\t2\t209100951\t209130798\t-\tnull\n"
	patientsFile = "name\tgender\trace\tvital_status\ttumor_stage\ttumor_grade\tcancer\n" +
		"TCGA-02-0001\tFEMALE\tWHITE\tDECEASED\tnull\tnull\tGBM\n" +
		"TCGA-A1-A0SB\tFEMALE\tNULL\tLIVING\tStage I\tnull\tBRCA\n"
	platformsFile = "platform\tdescription\nIlluminaHiSeq\tRNA-seq\nAffymetrix\tSNP6 arrays\n"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newLoader(db *database.DB, opts loader.Options) *loader.Loader {
	return loader.New(db, opts, dbtest.Logger())
}

// seed loads cancer types, genes, platforms and patients.
func seed(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	l := newLoader(db, loader.Options{})

	for _, step := range []struct {
		load    func(context.Context, string) (*loader.Report, error)
		name    string
		content string
	}{
		{l.LoadCancerTypes, "cancer_types.tsv", cancerTypesFile},
		{l.LoadGenes, "genes.tsv", genesFile},
		{l.LoadExpPlatforms, "platforms.tsv", platformsFile},
		{l.LoadPatients, "patients.tsv", patientsFile},
	} {
		report, err := step.load(ctx, writeFile(t, step.name, step.content))
		require.NoError(t, err, step.name)
		require.Empty(t, report.Issues, step.name)
	}
}

func TestLoadGenes(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})

	report, err := l.LoadGenes(context.Background(), writeFile(t, "genes.tsv", genesFile+"TP53\t17\t1\t2\t+\tdup\n"))
	require.NoError(t, err)

	assert.Equal(t, 4, report.Lines)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, loader.ReasonDuplicate, report.Issues[0].Reason)
	assert.True(t, report.Committed)
	assert.Equal(t, 3, dbtest.Count(t, db, "Genes"))

	id, err := db.LookupID(context.Background(), db.SQL, "Genes", "gene_id", "gene_name", "TP53")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	var other sql.NullString
	require.NoError(t, db.SQL.QueryRow("SELECT other FROM Genes WHERE gene_name = 'TP53'").Scan(&other))
	assert.False(t, other.Valid)
}

func TestLoadPatients_ResolvesCancerType(t *testing.T) {
	db := dbtest.NewSQLite(t)
	seed(t, db)

	var cancerTypeID int64
	var race sql.NullString
	require.NoError(t, db.SQL.QueryRow(
		"SELECT cancer_type_id, race FROM Patients WHERE name = 'TCGA-A1-A0SB'").Scan(&cancerTypeID, &race))
	assert.Equal(t, int64(2), cancerTypeID)
	assert.False(t, race.Valid)
}

func TestLoad_QuotesArePreserved(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})

	_, err := l.LoadExpPlatforms(context.Background(),
		writeFile(t, "platforms.tsv", "platform\tdescription\nO'Brien's array\t3'UTR probes\n"))
	require.NoError(t, err)

	var platform, description string
	require.NoError(t, db.SQL.QueryRow("SELECT platform, description FROM Exp_Platforms").Scan(&platform, &description))
	assert.Equal(t, "O'Brien's array", platform)
	assert.Equal(t, "3'UTR probes", description)
}

func TestLoadSomaticMutations(t *testing.T) {
	db := dbtest.NewSQLite(t)
	seed(t, db)
	l := newLoader(db, loader.Options{})

	content := "patient\tgene\tchromosome\tref_allele\tmut_type\tstart_pos\tend_pos\taa_code\ttranscript\tvariant_class\n" +
		"TCGA-02-0001\tTP53\t17\tC\tnonsynonymous SNV\t7578406\t7578406\tR175H\tNM_000546\tMissense\n" +
		"TCGA-02-0001\tUnknown\t1\tA\tnonsynonymous SNV\t100\t100\tG12D\tNM_1\tMissense\n" +
		"TCGA-99-9999\tKRAS\t12\tC\tnonsynonymous SNV\t25398284\t25398284\tG12D\tNM_004985\tMissense\n" +
		"TCGA-A1-A0SB\tKRAS\t12\tC\tframeshift\t25398284\t25398285\tfs\tNM_004985\tFrame_Shift\n" +
		"TCGA-A1-A0SB\tKRAS\t12\n"

	report, err := l.LoadSomaticMutations(context.Background(), writeFile(t, "sm.tsv", content))
	require.NoError(t, err)

	assert.Equal(t, 5, report.Lines)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 3, report.Skipped())

	reasons := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		reasons = append(reasons, issue.Reason)
	}
	assert.Equal(t, []string{loader.ReasonUnknownGene, loader.ReasonNotFound, loader.ReasonFieldCount}, reasons)
	assert.Equal(t, 3, report.Issues[0].Line)

	var loc int
	var norm, mut string
	require.NoError(t, db.SQL.QueryRow(
		"SELECT aa_loc, aa_norm, aa_mut FROM Somatic_Mutations WHERE patient_id = 1").Scan(&loc, &norm, &mut))
	assert.Equal(t, 175, loc)
	assert.Equal(t, "R", norm)
	assert.Equal(t, "H", mut)

	var nullLoc sql.NullInt64
	var nullNorm sql.NullString
	require.NoError(t, db.SQL.QueryRow(
		"SELECT aa_loc, aa_norm, aa_mut FROM Somatic_Mutations WHERE patient_id = 2").Scan(&nullLoc, &nullNorm, &mut))
	assert.False(t, nullLoc.Valid)
	assert.False(t, nullNorm.Valid)
	assert.Equal(t, "fs", mut)
}

func TestLoadSomaticMutations_UnusableAminoAcidCode(t *testing.T) {
	db := dbtest.NewSQLite(t)
	seed(t, db)
	l := newLoader(db, loader.Options{})

	content := "patient\tgene\tchromosome\tref_allele\tmut_type\tstart_pos\tend_pos\taa_code\ttranscript\tvariant_class\n" +
		"TCGA-02-0001\tTP53\t17\tC\tnonsynonymous SNV\t7578406\t7578406\tR99999999999999999999H\tNM_000546\tMissense\n" +
		"TCGA-02-0001\tTP53\t17\tC\tnonsynonymous SNV\t7578406\t7578406\tR175H\tNM_000546\tMissense\n"

	report, err := l.LoadSomaticMutations(context.Background(), writeFile(t, "sm.tsv", content))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, 2, report.Issues[0].Line)
	assert.Equal(t, loader.Skipped, report.Issues[0].Outcome)
	assert.Equal(t, loader.ReasonAminoAcid, report.Issues[0].Reason)
	assert.Equal(t, 0, countWhere(t, db, "SELECT COUNT(*) FROM Somatic_Mutations WHERE aa_loc IS NULL"))
}

func countWhere(t *testing.T, db *database.DB, query string) int {
	t.Helper()
	var n int
	require.NoError(t, db.SQL.QueryRow(query).Scan(&n))
	return n
}

func TestLoad_AmbiguousReferenceSkipsRow(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})
	ctx := context.Background()

	_, err := l.LoadCancerTypes(ctx, writeFile(t, "ct.tsv", cancerTypesFile+"Breast cancer (duplicate)\tBRCA\n"))
	require.NoError(t, err)

	report, err := l.LoadPatients(ctx, writeFile(t, "patients.tsv", patientsFile))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, loader.ReasonAmbiguous, report.Issues[0].Reason)
	assert.Equal(t, loader.Skipped, report.Issues[0].Outcome)
	assert.Equal(t, 1, dbtest.Count(t, db, "Patients"))
}

func TestLoadSCNAs_NullableReferences(t *testing.T) {
	db := dbtest.NewSQLite(t)
	seed(t, db)
	l := newLoader(db, loader.Options{})

	content := "patient\tgene\tchromosome\tgistic_score\tplatform\n" +
		"TCGA-02-0001\tTP53\t17\t-2\tAffymetrix\n" +
		"NULL\tKRAS\t12\t1\tnull\n"

	report, err := l.LoadSCNAs(context.Background(), writeFile(t, "scna.tsv", content))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)

	var patientID, platformID sql.NullInt64
	require.NoError(t, db.SQL.QueryRow(
		"SELECT patient_id, platform_id FROM SCNAs WHERE gistic_score = 1").Scan(&patientID, &platformID))
	assert.False(t, patientID.Valid)
	assert.False(t, platformID.Valid)

	require.NoError(t, db.SQL.QueryRow(
		"SELECT patient_id, platform_id FROM SCNAs WHERE gistic_score = -2").Scan(&patientID, &platformID))
	assert.Equal(t, int64(1), patientID.Int64)
	assert.Equal(t, int64(2), platformID.Int64)
}

func TestLoadDEGs(t *testing.T) {
	db := dbtest.NewSQLite(t)
	seed(t, db)
	l := newLoader(db, loader.Options{})

	content := "patient\tgene\tregulation\tplatform\tp_value\n" +
		"TCGA-02-0001\tIDH1\tup\tIlluminaHiSeq\t0.001\n" +
		"TCGA-02-0001\tKRAS\tdown\tnull\t0.04\n" +
		"null\tKRAS\tdown\tnull\t0.04\n"

	report, err := l.LoadDEGs(context.Background(), writeFile(t, "degs.tsv", content))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, 2, dbtest.Count(t, db, "DEGs"))
}

func TestLoadTDIResults_DriverKinds(t *testing.T) {
	db := dbtest.NewSQLite(t)
	seed(t, db)
	ctx := context.Background()

	_, err := newLoader(db, loader.Options{}).LoadSGAUnitGroups(ctx, writeFile(t, "groups.tsv",
		"name\tcancer\tdescription\tmembers\nSGA.group.7\tGBM\tRTK group\tEGFR,PDGFRA\n"))
	require.NoError(t, err)

	content := "patient\tdriver\ttarget\tposterior\texp\n" +
		"TCGA-02-0001\tTP53\tKRAS\t0.93\tnull\n" +
		"TCGA-02-0001\tSGA.group.7\tIDH1\t0.71\tnull\n"

	l := newLoader(db, loader.Options{DriverKind: domain.DriverAuto, ExperimentID: 3})
	_, err = l.AddExperiment(ctx, &domain.Experiment{Model: "TDI", Name: "one"})
	require.NoError(t, err)
	_, err = l.AddExperiment(ctx, &domain.Experiment{Model: "TDI", Name: "two"})
	require.NoError(t, err)
	_, err = l.AddExperiment(ctx, &domain.Experiment{Model: "TDI", Name: "three"})
	require.NoError(t, err)

	report, err := l.LoadTDIResults(ctx, writeFile(t, "tdi.tsv", content))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)

	var geneID, groupID sql.NullInt64
	var expID int64
	require.NoError(t, db.SQL.QueryRow(
		"SELECT gt_gene_id, gt_unit_group_id, exp_id FROM TDI_Results WHERE posterior > 0.9").Scan(&geneID, &groupID, &expID))
	assert.Equal(t, int64(1), geneID.Int64)
	assert.False(t, groupID.Valid)
	assert.Equal(t, int64(3), expID)

	require.NoError(t, db.SQL.QueryRow(
		"SELECT gt_gene_id, gt_unit_group_id FROM TDI_Results WHERE posterior < 0.9").Scan(&geneID, &groupID))
	assert.False(t, geneID.Valid)
	assert.Equal(t, int64(1), groupID.Int64)

	// an explicit gene kind never consults SGA_Unit_Group
	report, err = newLoader(db, loader.Options{DriverKind: domain.DriverGene}).
		LoadTDIResults(ctx, writeFile(t, "tdi2.tsv", content))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, loader.ReasonNotFound, report.Issues[0].Reason)
	assert.Equal(t, 3, dbtest.Count(t, db, "TDI_Results"))
}

func TestLoad_PerRowFailureContinues(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})

	report, err := l.LoadCancerTypes(context.Background(),
		writeFile(t, "ct.tsv", "name\tabbv\nGlioblastoma\tGBM\nNULL\tXX\nLung adenocarcinoma\tLUAD\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, loader.ReasonInsertFailed, report.Issues[0].Reason)
	assert.Contains(t, report.Issues[0].Statement, "VALUES (NULL,NULL,'XX')")
	assert.Equal(t, 2, dbtest.Count(t, db, "Cancer_Types"))
}

func TestLoad_FailFastStopsPerRowLoad(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})
	ctx := context.Background()

	_, err := l.LoadCancerTypes(ctx, writeFile(t, "ct.tsv", cancerTypesFile))
	require.NoError(t, err)

	content := "name\tgender\trace\tvital_status\ttumor_stage\ttumor_grade\tcancer\n" +
		"TCGA-02-0001\tFEMALE\tWHITE\tDECEASED\tnull\tnull\tGBM\n" +
		"NULL\tMALE\tWHITE\tLIVING\tnull\tnull\tGBM\n" +
		"TCGA-02-0003\tMALE\tWHITE\tLIVING\tnull\tnull\tGBM\n"

	report, err := l.LoadPatients(ctx, writeFile(t, "patients.tsv", content))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFatalInsert))
	assert.Equal(t, 2, report.Lines)
	assert.Equal(t, 1, report.Inserted)
	assert.True(t, report.Committed)
	assert.Equal(t, 1, dbtest.Count(t, db, "Patients"))
}

func TestLoad_AtomicRollsBackEverything(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{Mode: loader.Atomic})

	report, err := l.LoadCancerTypes(context.Background(),
		writeFile(t, "ct.tsv", "name\tabbv\nGlioblastoma\tGBM\nNULL\tXX\nLung adenocarcinoma\tLUAD\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFatalInsert))
	assert.False(t, report.Committed)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 0, dbtest.Count(t, db, "Cancer_Types"))
}

func TestLoad_AtomicCommitsOnce(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{Mode: loader.Atomic})
	ctx := context.Background()

	_, err := l.LoadCancerTypes(ctx, writeFile(t, "ct.tsv", cancerTypesFile))
	require.NoError(t, err)

	report, err := l.LoadPatients(ctx, writeFile(t, "patients.tsv", patientsFile+"TCGA-X\tMALE\tWHITE\tLIVING\tnull\tnull\tLUAD\n"))
	require.NoError(t, err)
	assert.True(t, report.Committed)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, 2, dbtest.Count(t, db, "Patients"))
}

func TestLoad_DryRunWritesNothing(t *testing.T) {
	db := dbtest.NewSQLite(t)
	var out bytes.Buffer
	l := newLoader(db, loader.Options{DryRun: true, Output: &out})

	report, err := l.LoadCancerTypes(context.Background(), writeFile(t, "ct.tsv", cancerTypesFile))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Inserted)
	assert.False(t, report.Committed)
	assert.Equal(t, 0, dbtest.Count(t, db, "Cancer_Types"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `INSERT INTO Cancer_Types ("cancer_type_id", "name", "abbv") VALUES (NULL,'Glioblastoma','GBM');`, lines[0])
}

func TestLoad_GzipInput(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(cancerTypesFile))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "cancer_types.tsv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	report, err := l.LoadCancerTypes(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 2, dbtest.Count(t, db, "Cancer_Types"))
}

func TestLoad_CustomDelimiter(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{Delimiter: "|"})

	report, err := l.LoadCancerTypes(context.Background(),
		writeFile(t, "ct.psv", "name|abbv\r\nGlioblastoma|GBM\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Lines)
	assert.Equal(t, 1, report.Inserted)
}

func TestLoad_InvalidHeader(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
	}{
		{name: "Too few columns", content: "name\nGlioblastoma\n"},
		{name: "Injected identifier", content: "name\tabbv); DROP TABLE Genes; --\nGlioblastoma\tGBM\n"},
		{name: "Empty file", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadCancerTypes(ctx, writeFile(t, "ct.tsv", tt.content))
			assert.True(t, errors.Is(err, domain.ErrInvalidHeader), "got %v", err)
		})
	}
	assert.Equal(t, 0, dbtest.Count(t, db, "Cancer_Types"))
}

func TestLoad_MissingFile(t *testing.T) {
	db := dbtest.NewSQLite(t)
	_, err := newLoader(db, loader.Options{}).LoadGenes(context.Background(), filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, err)
}

func TestSpecFor(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})

	for _, name := range []string{"cancer-types", "genes", "platforms", "groups", "patients", "mutations", "scnas", "degs", "tdi"} {
		spec, err := l.SpecFor(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, spec.Table)
	}

	_, err := l.SpecFor("variants")
	assert.Error(t, err)
}

func TestAddExperiment(t *testing.T) {
	db := dbtest.NewSQLite(t)
	l := newLoader(db, loader.Options{})
	ctx := context.Background()

	exp := &domain.Experiment{
		Model:        "TDI",
		Description:  "Tumor-specific driver identification",
		ParameterSet: "alpha=0.05",
		Name:         "TCGA pan-cancer",
		Date:         "2016-03-01",
	}
	id, err := l.AddExperiment(ctx, exp)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, id, exp.ID)

	var date string
	require.NoError(t, db.SQL.QueryRow("SELECT exp_date FROM Experiments WHERE exp_id = 1").Scan(&date))
	assert.Equal(t, "2016-03-01", date)

	_, err = l.AddExperiment(ctx, &domain.Experiment{Model: "TDI", Name: "bad date", Date: "03/01/2016"})
	var validationErr *domain.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "exp_date", validationErr.Field)

	_, err = l.AddExperiment(ctx, &domain.Experiment{Name: "no model"})
	assert.Error(t, err)
	assert.Equal(t, 1, dbtest.Count(t, db, "Experiments"))
}
