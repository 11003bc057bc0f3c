package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tdi-genomics/tdisql/internal/database"
	"github.com/tdi-genomics/tdisql/internal/domain"
	"github.com/tdi-genomics/tdisql/internal/metrics"
)

// OverlapFloor is the number of distinct tumors a target must exceed for a
// driver before it takes part in an overlap comparison.
const OverlapFloor = 5

// TDIRepository answers driver/target questions over the TDI tables.
type TDIRepository struct {
	db  *database.DB
	log *logrus.Logger
}

// NewTDIRepository creates a new TDI repository
func NewTDIRepository(db *database.DB, logger *logrus.Logger) *TDIRepository {
	return &TDIRepository{
		db:  db,
		log: logger,
	}
}

// GeneID resolves a gene name to its id. Unknown names yield an error
// wrapping domain.ErrNotFound, duplicated names domain.ErrAmbiguous.
func (r *TDIRepository) GeneID(ctx context.Context, name string) (id int64, err error) {
	defer observe("gene_id", time.Now(), &err)

	id, err = r.db.LookupID(ctx, r.db.SQL, "Genes", "gene_id", "gene_name", name)
	if err != nil {
		entry := r.log.WithFields(logrus.Fields{
			"gene":  name,
			"error": err,
		})
		switch {
		case errors.Is(err, domain.ErrNotFound):
			entry.Warn("Gene not found")
		case errors.Is(err, domain.ErrAmbiguous):
			entry.Error("Gene name is not unique")
		default:
			entry.Error("Failed to look up gene")
		}
		return 0, fmt.Errorf("resolving gene %q: %w", name, err)
	}
	return id, nil
}

// TumorsWithDriver returns the distinct patients in which gene was called as a
// driver. A synonymous or nonsynonymous class restricts the result to patients
// carrying a mutation of that type in gene. Unknown classes are treated as all.
func (r *TDIRepository) TumorsWithDriver(ctx context.Context, gene string, class domain.MutationClass) (ids []int64, err error) {
	defer observe("tumors_with_driver", time.Now(), &err)

	if !class.IsValid() {
		r.log.WithFields(logrus.Fields{
			"gene":  gene,
			"class": class,
		}).Warn("Unknown mutation class, using all")
		class = domain.MutationAll
	}

	query := `
		SELECT DISTINCT p.patient_id
		FROM TDI_Results t
		JOIN Patients p ON t.patient_id = p.patient_id
		JOIN Genes g ON t.gt_gene_id = g.gene_id`
	args := []any{gene}
	where := `
		WHERE g.gene_name = ? AND t.gt_gene_id IS NOT NULL`

	if mutType := class.MutType(); mutType != "" {
		query += `
		JOIN Somatic_Mutations s ON s.patient_id = p.patient_id AND s.gene_id = g.gene_id`
		where += ` AND s.mut_type = ?`
		args = append(args, mutType)
	}
	query += where + `
		ORDER BY p.patient_id`

	return r.selectIDs(ctx, query, args...)
}

// CountTumorsWithDriverAtLocation counts distinct patients with gene called as
// a driver and mutated at the amino-acid position loc.
func (r *TDIRepository) CountTumorsWithDriverAtLocation(ctx context.Context, gene string, loc int) (count int, err error) {
	defer observe("count_tumors_at_location", time.Now(), &err)

	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(DISTINCT patient_id)
		FROM TDI_SM
		WHERE gt_gene_id = ? AND aa_loc = ?`

	if err := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(query), geneID, loc).Scan(&count); err != nil {
		return 0, r.failed(query, []any{geneID, loc}, err)
	}
	return count, nil
}

// TumorsWithDriverAtLocation lists the patients counted by CountTumorsWithDriverAtLocation.
func (r *TDIRepository) TumorsWithDriverAtLocation(ctx context.Context, gene string, loc int) (ids []int64, err error) {
	defer observe("tumors_at_location", time.Now(), &err)

	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return nil, err
	}
	return r.tumorsAtLocation(ctx, geneID, loc)
}

func (r *TDIRepository) tumorsAtLocation(ctx context.Context, geneID int64, loc int) ([]int64, error) {
	query := `
		SELECT DISTINCT patient_id
		FROM TDI_SM
		WHERE gt_gene_id = ? AND aa_loc = ?
		ORDER BY patient_id`

	return r.selectIDs(ctx, query, geneID, loc)
}

// TargetFrequenciesAtHotspot counts, per target gene, the distinct patients in
// which gene drives it with a mutation at loc. Most frequent targets first.
func (r *TDIRepository) TargetFrequenciesAtHotspot(ctx context.Context, gene string, loc int) (freqs []domain.TargetFrequency, err error) {
	defer observe("targets_at_hotspot", time.Now(), &err)

	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return nil, err
	}
	return r.targetsAtHotspot(ctx, geneID, loc)
}

func (r *TDIRepository) targetsAtHotspot(ctx context.Context, geneID int64, loc int) ([]domain.TargetFrequency, error) {
	query := `
		SELECT g.gene_name, COUNT(DISTINCT s.patient_id) AS num_tumors
		FROM TDI_SM s
		JOIN Genes g ON g.gene_id = s.ge_gene_id
		WHERE s.aa_loc = ? AND s.gt_gene_id = ?
		GROUP BY g.gene_id, g.gene_name
		ORDER BY num_tumors DESC, g.gene_name`

	return r.selectFrequencies(ctx, query, loc, geneID)
}

// TargetGenesForPatient lists the targets gene drives in one patient.
func (r *TDIRepository) TargetGenesForPatient(ctx context.Context, gene string, patientID int64) (targets []string, err error) {
	defer observe("patient_targets", time.Now(), &err)

	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return nil, err
	}
	return r.patientTargets(ctx, geneID, patientID)
}

func (r *TDIRepository) patientTargets(ctx context.Context, geneID, patientID int64) ([]string, error) {
	query := `
		SELECT DISTINCT g.gene_name
		FROM TDI_Results t
		JOIN Genes g ON t.ge_gene_id = g.gene_id
		WHERE t.gt_gene_id = ? AND t.patient_id = ?
		ORDER BY g.gene_name`

	return r.selectStrings(ctx, query, geneID, patientID)
}

// TopHotspots returns at most n amino-acid positions of gene ranked by the
// number of distinct patients in which gene is a driver mutated there. A
// negative n is a *domain.ValidationError.
func (r *TDIRepository) TopHotspots(ctx context.Context, gene string, n int) (hotspots []domain.Hotspot, err error) {
	defer observe("top_hotspots", time.Now(), &err)

	if err := checkTop(n); err != nil {
		return nil, err
	}
	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return nil, err
	}
	return r.topHotspots(ctx, geneID, n)
}

func (r *TDIRepository) topHotspots(ctx context.Context, geneID int64, n int) ([]domain.Hotspot, error) {
	if n == 0 {
		return []domain.Hotspot{}, nil
	}
	query := `
		SELECT aa_loc, COUNT(DISTINCT patient_id) AS num_tumors
		FROM TDI_SM
		WHERE gt_gene_id = ? AND aa_loc IS NOT NULL
		GROUP BY aa_loc
		ORDER BY num_tumors DESC, aa_loc
		LIMIT ?`

	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(query), geneID, n)
	if err != nil {
		return nil, r.failed(query, []any{geneID, n}, err)
	}
	hotspots, err := collect(rows, func(rows *sql.Rows) (domain.Hotspot, error) {
		var h domain.Hotspot
		err := rows.Scan(&h.Location, &h.Tumors)
		return h, err
	})
	if err != nil {
		return nil, r.failed(query, []any{geneID, n}, err)
	}
	return hotspots, nil
}

// TopHotspotsWithTargets maps each of gene's top n hotspots to the target
// frequencies observed there. A hotspot whose targets cannot be read is left
// out; failing to rank the hotspots fails the call.
func (r *TDIRepository) TopHotspotsWithTargets(ctx context.Context, gene string, n int) (result map[int][]domain.TargetFrequency, err error) {
	defer observe("top_hotspots_with_targets", time.Now(), &err)

	if err := checkTop(n); err != nil {
		return nil, err
	}
	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return nil, err
	}

	hotspots, err := r.topHotspots(ctx, geneID, n)
	if err != nil {
		return nil, err
	}

	result = make(map[int][]domain.TargetFrequency, len(hotspots))
	for _, hs := range hotspots {
		freqs, err := r.targetsAtHotspot(ctx, geneID, hs.Location)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.WithFields(logrus.Fields{
				"gene":     gene,
				"location": hs.Location,
			}).Warn("Skipping hotspot")
			continue
		}
		result[hs.Location] = freqs
	}
	return result, nil
}

// OverlappingTargets returns, sorted by name, the targets that both drivers
// drive in more than OverlapFloor distinct patients.
func (r *TDIRepository) OverlappingTargets(ctx context.Context, geneA, geneB string) (common []string, err error) {
	defer observe("overlapping_targets", time.Now(), &err)

	idA, err := r.GeneID(ctx, geneA)
	if err != nil {
		return nil, err
	}
	idB, err := r.GeneID(ctx, geneB)
	if err != nil {
		return nil, err
	}

	targetsA, err := r.frequentTargets(ctx, idA)
	if err != nil {
		return nil, err
	}
	targetsB, err := r.frequentTargets(ctx, idB)
	if err != nil {
		return nil, err
	}

	inB := make(map[string]struct{}, len(targetsB))
	for _, f := range targetsB {
		inB[f.Gene] = struct{}{}
	}
	common = []string{}
	for _, f := range targetsA {
		if _, ok := inB[f.Gene]; ok {
			common = append(common, f.Gene)
		}
	}
	sort.Strings(common)
	return common, nil
}

func (r *TDIRepository) frequentTargets(ctx context.Context, geneID int64) ([]domain.TargetFrequency, error) {
	query := `
		SELECT g.gene_name, COUNT(DISTINCT t.patient_id) AS num_tumors
		FROM TDI_Results t
		JOIN Genes g ON t.ge_gene_id = g.gene_id
		WHERE t.gt_gene_id = ?
		GROUP BY g.gene_id, g.gene_name
		HAVING COUNT(DISTINCT t.patient_id) > ?
		ORDER BY num_tumors DESC, g.gene_name`

	return r.selectFrequencies(ctx, query, geneID, OverlapFloor)
}

// DriversForTarget returns the driver genes linked to target in more than
// minTumors distinct patients, most frequent first.
func (r *TDIRepository) DriversForTarget(ctx context.Context, target string, minTumors int) (drivers []domain.DriverFrequency, err error) {
	defer observe("drivers_for_target", time.Now(), &err)

	targetID, err := r.GeneID(ctx, target)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT g.gene_name, COUNT(DISTINCT t.patient_id) AS num_tumors
		FROM TDI_Results t
		JOIN Genes g ON t.gt_gene_id = g.gene_id
		WHERE t.ge_gene_id = ?
		GROUP BY g.gene_id, g.gene_name
		HAVING COUNT(DISTINCT t.patient_id) > ?
		ORDER BY num_tumors DESC, g.gene_name`

	freqs, err := r.selectFrequencies(ctx, query, targetID, minTumors)
	if err != nil {
		return nil, err
	}
	drivers = make([]domain.DriverFrequency, len(freqs))
	for i, f := range freqs {
		drivers[i] = domain.DriverFrequency(f)
	}
	return drivers, nil
}

// TumorsWithoutAnyOf returns the names of mutated patients that carry no
// somatic mutation in any of genes. An empty gene list excludes nobody.
func (r *TDIRepository) TumorsWithoutAnyOf(ctx context.Context, genes []string) (names []string, err error) {
	defer observe("tumors_without", time.Now(), &err)

	query := `
		SELECT DISTINCT p.name
		FROM Somatic_Mutations s
		JOIN Patients p ON s.patient_id = p.patient_id`
	args := make([]any, 0, len(genes))

	if len(genes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(genes)), ", ")
		query += `
		WHERE s.patient_id NOT IN (
			SELECT DISTINCT m.patient_id
			FROM Somatic_Mutations m
			JOIN Genes g ON m.gene_id = g.gene_id
			WHERE g.gene_name IN (` + placeholders + `) AND m.patient_id IS NOT NULL
		)`
		for _, g := range genes {
			args = append(args, g)
		}
	}
	query += `
		ORDER BY p.name`

	return r.selectStrings(ctx, query, args...)
}

// TargetFrequenciesAtTopHotspots takes the patients mutated at any of gene's
// top n nonsynonymous hotspots and tallies the targets gene drives in them.
func (r *TDIRepository) TargetFrequenciesAtTopHotspots(ctx context.Context, gene string, n int) (tally *domain.TargetTally, err error) {
	defer observe("targets_at_top_hotspots", time.Now(), &err)

	if err := checkTop(n); err != nil {
		return nil, err
	}
	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return domain.NewTargetTally(), nil
	}

	query := `
		SELECT aa_loc
		FROM Somatic_Mutations
		WHERE gene_id = ? AND mut_type = ? AND aa_loc IS NOT NULL
		GROUP BY aa_loc
		ORDER BY COUNT(DISTINCT patient_id) DESC, aa_loc
		LIMIT ?`

	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(query), geneID, domain.NonsynonymousSNV, n)
	if err != nil {
		return nil, r.failed(query, []any{geneID, domain.NonsynonymousSNV, n}, err)
	}
	locations, err := collect(rows, func(rows *sql.Rows) (int, error) {
		var loc int
		err := rows.Scan(&loc)
		return loc, err
	})
	if err != nil {
		return nil, r.failed(query, []any{geneID, domain.NonsynonymousSNV, n}, err)
	}

	var tumors []int64
	seen := make(map[int64]struct{})
	for _, loc := range locations {
		ids, err := r.tumorsAtLocation(ctx, geneID, loc)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				tumors = append(tumors, id)
			}
		}
	}

	return r.tally(ctx, geneID, tumors)
}

// TargetFrequenciesWithDeletion tallies the targets gene drives in the
// patients carrying a deep deletion of gene.
func (r *TDIRepository) TargetFrequenciesWithDeletion(ctx context.Context, gene string) (tally *domain.TargetTally, err error) {
	defer observe("targets_with_deletion", time.Now(), &err)

	geneID, err := r.GeneID(ctx, gene)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT DISTINCT patient_id
		FROM SCNAs
		WHERE gene_id = ? AND gistic_score = ? AND patient_id IS NOT NULL
		ORDER BY patient_id`

	tumors, err := r.selectIDs(ctx, query, geneID, domain.DeletionScore)
	if err != nil {
		return nil, err
	}
	return r.tally(ctx, geneID, tumors)
}

// checkTop rejects a negative hotspot count; some stores read LIMIT -1 as no limit.
func checkTop(n int) error {
	if n < 0 {
		return domain.NewValidationError("n", "hotspot count must not be negative", n)
	}
	return nil
}

func (r *TDIRepository) tally(ctx context.Context, geneID int64, tumors []int64) (*domain.TargetTally, error) {
	tally := domain.NewTargetTally()
	tally.Tumors = len(tumors)
	for _, patientID := range tumors {
		targets, err := r.patientTargets(ctx, geneID, patientID)
		if err != nil {
			return nil, err
		}
		tally.Add(targets)
	}
	return tally, nil
}

func (r *TDIRepository) selectIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, r.failed(query, args, err)
	}
	ids, err := collect(rows, func(rows *sql.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, r.failed(query, args, err)
	}
	return ids, nil
}

func (r *TDIRepository) selectStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, r.failed(query, args, err)
	}
	values, err := collect(rows, func(rows *sql.Rows) (string, error) {
		var s string
		err := rows.Scan(&s)
		return s, err
	})
	if err != nil {
		return nil, r.failed(query, args, err)
	}
	return values, nil
}

func (r *TDIRepository) selectFrequencies(ctx context.Context, query string, args ...any) ([]domain.TargetFrequency, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, r.failed(query, args, err)
	}
	freqs, err := collect(rows, func(rows *sql.Rows) (domain.TargetFrequency, error) {
		var f domain.TargetFrequency
		err := rows.Scan(&f.Gene, &f.Tumors)
		return f, err
	})
	if err != nil {
		return nil, r.failed(query, args, err)
	}
	return freqs, nil
}

// collect drains and closes rows.
func collect[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// failed logs the statement that failed and wraps err.
func (r *TDIRepository) failed(query string, args []any, err error) error {
	statement := strings.Join(strings.Fields(query), " ")
	r.log.WithFields(logrus.Fields{
		"statement": statement,
		"args":      args,
		"error":     err,
	}).Error("Query failed")
	return fmt.Errorf("executing %q: %w", statement, err)
}

func observe(name string, started time.Time, err *error) {
	metrics.ObserveQuery(name, started, *err)
}
