package domain

// Experiment is a single row of the Experiments table. Experiments are not
// file-loaded; they are added one at a time.
type Experiment struct {
	ID           int64  `json:"exp_id,omitempty"`
	Model        string `json:"model"`
	Description  string `json:"description"`
	ParameterSet string `json:"parameter_set"`
	Name         string `json:"name"`
	Date         string `json:"exp_date"` // yyyy-mm-dd
}

// Validate checks the fields the Experiments table requires.
func (e *Experiment) Validate() error {
	if e.Model == "" {
		return NewValidationError("model", "model is required", e.Model)
	}
	if e.Name == "" {
		return NewValidationError("name", "name is required", e.Name)
	}
	return nil
}

// TargetFrequency is a target gene and the number of distinct tumors in which
// it was linked to a driver.
type TargetFrequency struct {
	Gene   string `json:"gene"`
	Tumors int    `json:"tumors"`
}

// DriverFrequency is a driver gene and the number of distinct tumors in which
// it drives a given target.
type DriverFrequency struct {
	Gene   string `json:"gene"`
	Tumors int    `json:"tumors"`
}

// Hotspot is an amino-acid position and the number of distinct tumors mutated there.
type Hotspot struct {
	Location int `json:"location"`
	Tumors   int `json:"tumors"`
}

// TargetTally aggregates, over a set of tumors, how many of them carry each target.
type TargetTally struct {
	Targets map[string]int `json:"targets"`
	Tumors  int            `json:"tumors"`
}

// NewTargetTally returns an empty tally.
func NewTargetTally() *TargetTally {
	return &TargetTally{Targets: make(map[string]int)}
}

// Add counts each target of one tumor.
func (t *TargetTally) Add(targets []string) {
	for _, g := range targets {
		t.Targets[g]++
	}
}
