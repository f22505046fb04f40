package model

// Criterion is one named, weighted rule a note is evaluated against
type Criterion struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`                 // Stable key, unique within a ruleset version
	DisplayName string  `json:"displayName" yaml:"display_name"` // Human label shown next to results
	Weight      float64 `json:"weight" yaml:"weight"`             // Positive; renormalized when scoring
	Description string  `json:"description" yaml:"description"`
}

// Label returns the display name, falling back to the criterion name
func (c Criterion) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// RuleSet is a named, ordered list of criteria for one input-field type
type RuleSet struct {
	Name      string      `json:"name" yaml:"name"`
	Version   int         `json:"version" yaml:"version"`
	InputType string      `json:"inputType" yaml:"input_type"` // e.g. problem_statement, fsr_notes
	Criteria  []Criterion `json:"criteria" yaml:"criteria"`
	Advice    []string    `json:"advice,omitempty" yaml:"advice,omitempty"`
	Skeleton  string      `json:"skeleton,omitempty" yaml:"skeleton,omitempty"` // Example rewrite shape
}

// Names returns the criterion names in ruleset order
func (r RuleSet) Names() []string {
	return CriterionNames(r.Criteria)
}

// Find returns the criterion with the given name
func (r RuleSet) Find(name string) (Criterion, bool) {
	for _, c := range r.Criteria {
		if c.Name == name {
			return c, true
		}
	}
	return Criterion{}, false
}

// CriterionNames returns the names of the given criteria, preserving order
func CriterionNames(criteria []Criterion) []string {
	names := make([]string, 0, len(criteria))
	for _, c := range criteria {
		names = append(names, c.Name)
	}
	return names
}
