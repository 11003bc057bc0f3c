package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tdi-genomics/tdisql/internal/domain"
)

const experimentInsert = "INSERT INTO Experiments (model, description, parameter_set, name, exp_date) VALUES (?, ?, ?, ?, ?)"

// AddExperiment inserts one Experiments row and returns its generated id.
// The date, when given, must be formatted yyyy-mm-dd.
func (l *Loader) AddExperiment(ctx context.Context, exp *domain.Experiment) (int64, error) {
	if err := exp.Validate(); err != nil {
		return 0, err
	}

	fields := []string{exp.Model, exp.Description, exp.ParameterSet, exp.Name, exp.Date}
	args := BindValues(fields, []FieldKind{String, String, String, String, String})
	if exp.Date == "" {
		args[4] = nil
		fields[4] = "NULL"
	} else if _, err := time.Parse("2006-01-02", exp.Date); err != nil {
		return 0, domain.NewValidationError("exp_date", "must be formatted yyyy-mm-dd", exp.Date)
	}

	literal := fmt.Sprintf("INSERT INTO Experiments (exp_id, model, description, parameter_set, name, exp_date) VALUES (%s)",
		FormatInsertValues(fields, []FieldKind{String, String, String, String, String}, true))

	if l.opts.DryRun {
		if _, err := fmt.Fprintln(l.opts.Output, literal+";"); err != nil {
			return 0, fmt.Errorf("writing dry-run output: %w", err)
		}
		return 0, nil
	}

	id, err := l.db.InsertID(ctx, l.db.SQL, experimentInsert, "exp_id", args...)
	if err != nil {
		l.log.WithError(err).WithField("statement", literal).Error("Experiment insert failed")
		return 0, fmt.Errorf("inserting experiment: %w", err)
	}
	exp.ID = id

	l.log.WithFields(logrus.Fields{
		"exp_id": id,
		"model":  exp.Model,
		"name":   exp.Name,
	}).Info("Experiment added")

	return id, nil
}
