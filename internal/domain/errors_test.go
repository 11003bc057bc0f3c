package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("exp_date", "must be formatted yyyy-mm-dd", "01/05/2016")

	expected := "validation error for field 'exp_date': must be formatted yyyy-mm-dd"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
	if err.Value != "01/05/2016" {
		t.Errorf("Expected value to be kept, got %v", err.Value)
	}
}

func TestLookupError(t *testing.T) {
	tests := []struct {
		name     string
		matches  int
		sentinel error
		message  string
	}{
		{
			name:     "Not found",
			matches:  0,
			sentinel: ErrNotFound,
			message:  `no Patients row with name = "TCGA-02-0001"`,
		},
		{
			name:     "Ambiguous",
			matches:  2,
			sentinel: ErrAmbiguous,
			message:  `2 Patients rows with name = "TCGA-02-0001"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &LookupError{Table: "Patients", Column: "name", Value: "TCGA-02-0001", Matches: tt.matches}

			if err.Error() != tt.message {
				t.Errorf("Expected %q, got %q", tt.message, err.Error())
			}

			wrapped := fmt.Errorf("line 4: %w", err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("Expected %v to unwrap to %v", wrapped, tt.sentinel)
			}

			var lookup *LookupError
			if !errors.As(wrapped, &lookup) || lookup.Matches != tt.matches {
				t.Errorf("Expected errors.As to recover the lookup error")
			}
		})
	}
}

func TestExperimentValidate(t *testing.T) {
	tests := []struct {
		name  string
		exp   Experiment
		field string
	}{
		{name: "Valid", exp: Experiment{Model: "TDI", Name: "GBM run"}},
		{name: "Missing model", exp: Experiment{Name: "GBM run"}, field: "model"},
		{name: "Missing name", exp: Experiment{Model: "TDI"}, field: "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exp.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected a ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}
