// Package loader streams delimited text files into the TDI tables, resolving
// natural keys (patient, gene, platform and cancer names) to generated ids on
// the way in.
package loader

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/tdi-genomics/tdisql/internal/database"
	"github.com/tdi-genomics/tdisql/internal/domain"
	"github.com/tdi-genomics/tdisql/internal/metrics"
)

const (
	defaultDelimiter       = "\t"
	defaultLookupCacheSize = 4096
	defaultExperimentID    = 1
	maxLineSize            = 16 * 1024 * 1024
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options controls how load jobs run.
type Options struct {
	Delimiter string
	Mode      Mode
	// DryRun renders every resolved row to Output instead of inserting it.
	DryRun bool
	Output io.Writer
	// LookupCacheSize bounds the per-job foreign key cache; negative disables it.
	LookupCacheSize int
	ExperimentID    int64
	DriverKind      domain.DriverKind
}

// OptionsFromConfig builds load options from the loader configuration section.
func OptionsFromConfig(cfg domain.LoaderConfig) (Options, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return Options{}, err
	}
	kind, err := domain.ParseDriverKind(cfg.DriverKind)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Delimiter:       cfg.Delimiter,
		Mode:            mode,
		LookupCacheSize: cfg.LookupCacheSize,
		ExperimentID:    cfg.ExperimentID,
		DriverKind:      kind,
	}, nil
}

// Loader runs load jobs against one database.
type Loader struct {
	db   *database.DB
	opts Options
	log  *logrus.Logger
}

// New creates a loader, filling unset options with defaults.
func New(db *database.DB, opts Options, logger *logrus.Logger) *Loader {
	if opts.Delimiter == "" {
		opts.Delimiter = defaultDelimiter
	}
	if opts.Mode == "" {
		opts.Mode = PerRow
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LookupCacheSize == 0 {
		opts.LookupCacheSize = defaultLookupCacheSize
	}
	if opts.ExperimentID == 0 {
		opts.ExperimentID = defaultExperimentID
	}
	if opts.DriverKind == "" {
		opts.DriverKind = domain.DriverGene
	}
	return &Loader{
		db:   db,
		opts: opts,
		log:  logger,
	}
}

// Options returns the effective options.
func (l *Loader) Options() Options {
	return l.opts
}

// SpecFor returns the table spec for a CLI table name.
func (l *Loader) SpecFor(table string) (TableSpec, error) {
	switch table {
	case "cancer-types":
		return CancerTypesSpec(), nil
	case "genes":
		return GenesSpec(), nil
	case "platforms":
		return ExpPlatformsSpec(), nil
	case "groups":
		return SGAUnitGroupsSpec(), nil
	case "patients":
		return PatientsSpec(), nil
	case "mutations":
		return SomaticMutationsSpec(), nil
	case "scnas":
		return SCNAsSpec(), nil
	case "degs":
		return DEGsSpec(), nil
	case "tdi":
		return TDIResultsSpec(l.opts.DriverKind, l.opts.ExperimentID), nil
	default:
		return TableSpec{}, fmt.Errorf("unknown table %q", table)
	}
}

// LoadCancerTypes loads the Cancer_Types table.
func (l *Loader) LoadCancerTypes(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, CancerTypesSpec())
}

// LoadGenes loads the Genes table.
func (l *Loader) LoadGenes(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, GenesSpec())
}

// LoadExpPlatforms loads the Exp_Platforms table.
func (l *Loader) LoadExpPlatforms(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, ExpPlatformsSpec())
}

// LoadSGAUnitGroups loads the SGA_Unit_Group table.
func (l *Loader) LoadSGAUnitGroups(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, SGAUnitGroupsSpec())
}

// LoadPatients loads the Patients table.
func (l *Loader) LoadPatients(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, PatientsSpec())
}

// LoadSomaticMutations loads the Somatic_Mutations table.
func (l *Loader) LoadSomaticMutations(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, SomaticMutationsSpec())
}

// LoadSCNAs loads the SCNAs table.
func (l *Loader) LoadSCNAs(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, SCNAsSpec())
}

// LoadDEGs loads the DEGs table.
func (l *Loader) LoadDEGs(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, DEGsSpec())
}

// LoadTDIResults loads the TDI_Results table using the configured driver kind
// and experiment id.
func (l *Loader) LoadTDIResults(ctx context.Context, path string) (*Report, error) {
	return l.Load(ctx, path, TDIResultsSpec(l.opts.DriverKind, l.opts.ExperimentID))
}

// Load streams the file at path into spec.Table.
func (l *Loader) Load(ctx context.Context, path string, spec TableSpec) (*Report, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	return l.LoadReader(ctx, path, in, spec)
}

// LoadReader streams delimited rows from r into spec.Table. The first line is
// the header naming the target columns. The returned report is never nil; the
// error is non-nil only when the job as a whole failed.
func (l *Loader) LoadReader(ctx context.Context, name string, r io.Reader, spec TableSpec) (*Report, error) {
	report := newReport(spec.Table, name, l.opts.Mode, l.opts.DryRun)
	defer func() { report.FinishedAt = time.Now() }()

	logger := l.log.WithFields(logrus.Fields{
		"job_id": report.JobID,
		"table":  spec.Table,
		"path":   name,
		"mode":   l.opts.Mode,
	})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return report, fmt.Errorf("reading %s: %w", name, err)
		}
		return report, fmt.Errorf("%w: %s has no header line", domain.ErrInvalidHeader, name)
	}
	columns, err := headerColumns(scanner.Text(), l.opts.Delimiter, spec)
	if err != nil {
		return report, err
	}

	j, err := l.newJob(ctx, spec, columns, report, logger)
	if err != nil {
		return report, err
	}

	logger.Info("Starting load")

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, j.abort(err)
		}

		report.Lines++
		if err := j.row(ctx, lineNo, line); err != nil {
			return report, j.abort(err)
		}
	}
	if err := scanner.Err(); err != nil {
		return report, j.abort(fmt.Errorf("reading %s: %w", name, err))
	}

	if err := j.finish(); err != nil {
		return report, j.abort(err)
	}

	logger.WithFields(logrus.Fields{
		"lines":    report.Lines,
		"inserted": report.Inserted,
		"skipped":  report.Skipped(),
		"failed":   report.Failed(),
	}).Info("Load finished")

	return report, nil
}

// headerColumns maps each input field to its target column. Amino-acid fields
// map to "" and expand to aa_loc, aa_norm, aa_mut when the statement is built.
func headerColumns(line, delimiter string, spec TableSpec) ([]string, error) {
	names := strings.Split(strings.TrimSpace(line), delimiter)
	if len(names) != len(spec.Kinds) {
		return nil, fmt.Errorf("%w: %s expects %d columns, header has %d",
			domain.ErrInvalidHeader, spec.Table, len(spec.Kinds), len(names))
	}

	fkColumns := make(map[int]string, len(spec.ForeignKeys))
	for _, fk := range spec.ForeignKeys {
		fkColumns[fk.Field] = fk.Column
	}

	columns := make([]string, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)

		if spec.Kinds[i] == AminoAcidCode {
			continue
		}
		if override, ok := spec.Columns[i]; ok {
			columns[i] = override
			continue
		}
		if column, ok := fkColumns[i]; ok {
			columns[i] = column
			continue
		}
		if !identifier.MatchString(name) {
			return nil, fmt.Errorf("%w: column %d of %s header is %q",
				domain.ErrInvalidHeader, i+1, spec.Table, name)
		}
		columns[i] = name
	}
	return columns, nil
}

// job is the state of one load run.
type job struct {
	db      *database.DB
	spec    TableSpec
	opts    Options
	columns []string
	report  *Report
	log     *logrus.Entry
	cache   *lru.Cache[string, int64]

	// q serves lookups; tx is set in atomic mode and then q == tx.
	q  database.Querier
	tx *sql.Tx

	prefix, suffix string
}

func (l *Loader) newJob(ctx context.Context, spec TableSpec, columns []string, report *Report, logger *logrus.Entry) (*job, error) {
	j := &job{
		db:      l.db,
		spec:    spec,
		opts:    l.opts,
		columns: columns,
		report:  report,
		log:     logger,
		q:       l.db.SQL,
	}
	j.prefix, j.suffix = l.db.Dialect.InsertInto(spec.Table, spec.IgnoreDuplicates)

	if l.opts.LookupCacheSize > 0 {
		cache, err := lru.New[string, int64](l.opts.LookupCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating lookup cache: %w", err)
		}
		j.cache = cache
	}

	if l.opts.Mode == Atomic && !l.opts.DryRun {
		tx, err := l.db.SQL.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("beginning load transaction: %w", err)
		}
		j.tx = tx
		j.q = tx
	}
	return j, nil
}

// row processes one data line. A non-nil error ends the job.
func (j *job) row(ctx context.Context, lineNo int, line string) error {
	table := j.spec.Table
	fields := strings.Split(line, j.opts.Delimiter)
	if len(fields) != len(j.spec.Kinds) {
		j.skip(lineNo, ReasonFieldCount,
			fmt.Errorf("expected %d fields, got %d", len(j.spec.Kinds), len(fields)))
		return nil
	}

	if j.spec.Skip != nil {
		if reason := j.spec.Skip(fields); reason != "" {
			j.skip(lineNo, reason, nil)
			return nil
		}
	}

	if err := CheckAminoAcidCodes(fields, j.spec.Kinds); err != nil {
		j.log.WithError(err).WithField("line", lineNo).Warn("Unusable amino-acid code; skipping row")
		j.skip(lineNo, ReasonAminoAcid, err)
		return nil
	}

	for i, value := range j.spec.Fixed {
		fields[i] = value
	}

	columns := append([]string(nil), j.columns...)
	for _, fk := range j.spec.ForeignKeys {
		raw := fields[fk.Field]
		column, lookup := fk.target(raw)
		if fk.Nullable && IsNull(raw) {
			columns[fk.Field] = column
			continue
		}

		id, err := j.resolve(ctx, lookup, raw)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			j.skipLookup(lineNo, lookup, raw, err)
			return nil
		}
		columns[fk.Field] = column
		fields[fk.Field] = strconv.FormatInt(id, 10)
	}

	query, literal := j.statement(columns, fields)

	if j.opts.DryRun {
		if _, err := fmt.Fprintln(j.opts.Output, literal+";"); err != nil {
			return fmt.Errorf("writing dry-run output: %w", err)
		}
		j.report.Inserted++
		metrics.ObserveRow(table, "rendered")
		return nil
	}

	affected, err := j.insert(ctx, query, BindValues(fields, j.spec.Kinds))
	if err != nil {
		j.log.WithError(err).WithFields(logrus.Fields{
			"line":      lineNo,
			"statement": literal,
		}).Error("Insert failed")
		j.report.add(lineNo, Failed, ReasonInsertFailed, err, literal)
		metrics.ObserveRow(table, string(Failed))

		if j.spec.FailFast || j.tx != nil {
			return fmt.Errorf("%w: %s line %d: %v", domain.ErrFatalInsert, table, lineNo, err)
		}
		return nil
	}

	if affected == 0 && j.spec.IgnoreDuplicates {
		j.skip(lineNo, ReasonDuplicate, nil)
		return nil
	}

	j.report.Inserted++
	metrics.ObserveRow(table, "inserted")
	return nil
}

// statement builds the parameterized insert and its literal rendering.
func (j *job) statement(columns, fields []string) (string, string) {
	var names []string
	for i, column := range columns {
		if j.spec.Kinds[i] == AminoAcidCode {
			names = append(names, "aa_loc", "aa_norm", "aa_mut")
			continue
		}
		names = append(names, column)
	}

	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = j.db.Dialect.QuoteIdent(name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	query := fmt.Sprintf("%s (%s) VALUES (%s)%s",
		j.prefix, strings.Join(quoted, ", "), placeholders, j.suffix)
	literal := fmt.Sprintf("%s (%s, %s) VALUES (%s)%s",
		j.prefix, j.db.Dialect.QuoteIdent(j.spec.KeyColumn), strings.Join(quoted, ", "),
		FormatInsertValues(fields, j.spec.Kinds, true), j.suffix)

	return j.db.Rebind(query), literal
}

// insert executes one row. Outside atomic mode the row gets its own
// transaction, rolled back on failure.
func (j *job) insert(ctx context.Context, query string, args []any) (int64, error) {
	if j.tx != nil {
		res, err := j.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return rowsAffected(res), nil
	}

	tx, err := j.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning row transaction: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			j.log.WithError(rbErr).Warn("Rollback failed")
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing row: %w", err)
	}
	return rowsAffected(res), nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 1
	}
	return n
}

// resolve looks up a foreign key, consulting the job cache first. Only
// unique matches are cached.
func (j *job) resolve(ctx context.Context, lookup Lookup, value string) (int64, error) {
	key := lookup.Table + "." + lookup.MatchColumn + "\x00" + value
	if j.cache != nil {
		if id, ok := j.cache.Get(key); ok {
			return id, nil
		}
	}

	id, err := j.db.LookupID(ctx, j.q, lookup.Table, lookup.IDColumn, lookup.MatchColumn, value)
	if err != nil {
		return 0, err
	}
	if j.cache != nil {
		j.cache.Add(key, id)
	}
	return id, nil
}

func (j *job) skipLookup(lineNo int, lookup Lookup, value string, err error) {
	entry := j.log.WithError(err).WithFields(logrus.Fields{
		"line":         lineNo,
		"lookup_table": lookup.Table,
		"value":        value,
	})

	switch {
	case errors.Is(err, domain.ErrAmbiguous):
		entry.Error("Ambiguous reference, several rows match; skipping row")
		j.skip(lineNo, ReasonAmbiguous, err)
	case errors.Is(err, domain.ErrNotFound):
		entry.Warn("Unresolved reference; skipping row")
		j.skip(lineNo, ReasonNotFound, err)
	default:
		entry.Error("Lookup failed; skipping row")
		j.skip(lineNo, ReasonLookupFailed, err)
	}
}

func (j *job) skip(lineNo int, reason string, err error) {
	j.report.add(lineNo, Skipped, reason, err, "")
	metrics.ObserveRow(j.spec.Table, string(Skipped))
	j.log.WithFields(logrus.Fields{"line": lineNo, "reason": reason}).Debug("Row skipped")
}

// finish commits an atomic job.
func (j *job) finish() error {
	if j.tx != nil {
		if err := j.tx.Commit(); err != nil {
			j.tx = nil
			return fmt.Errorf("committing load: %w", err)
		}
		j.tx = nil
	}
	j.report.Committed = !j.opts.DryRun
	metrics.ObserveLoad(j.spec.Table, false)
	return nil
}

// abort rolls back an atomic job and returns err.
func (j *job) abort(err error) error {
	if j.tx != nil {
		if rbErr := j.tx.Rollback(); rbErr != nil {
			j.log.WithError(rbErr).Warn("Rollback failed")
		}
		j.tx = nil
		j.report.Inserted = 0
	} else if !j.opts.DryRun {
		// rows committed before the failure stay in place
		j.report.Committed = j.report.Inserted > 0
	}
	j.log.WithError(err).Error("Load aborted")
	metrics.ObserveLoad(j.spec.Table, true)
	return err
}
