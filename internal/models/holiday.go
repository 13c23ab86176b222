package models

import "time"

// Grade keys tracked independently for every city
const (
	GradeElementary = "elementary"
	GradeMiddle     = "middle"
	GradeHigh       = "high"
	GradeUniversity = "university"
	GradeOffices    = "offices"
)

// ProviderManual marks results that came from an operator override
const ProviderManual = "manual"

// GradeKeys returns the five fixed grade keys in display order
func GradeKeys() []string {
	return []string{
		GradeElementary,
		GradeMiddle,
		GradeHigh,
		GradeUniversity,
		GradeOffices,
	}
}

// ClosureStatus represents the closure state of a single grade
type ClosureStatus struct {
	IsOff       bool    `json:"isOff"`
	Probability float64 `json:"probability"`       // 0-100 for model output, 0-1 for manual overrides
	Message     string  `json:"message,omitempty"` // short explanation, model "reason" is mapped here
}

// OverallStatus represents the city-wide closure state
type OverallStatus struct {
	IsOff        bool    `json:"isOff"`
	Probability  float64 `json:"probability"`
	SourcesCount int     `json:"sourcesCount"`
	UpdatedAt    string  `json:"updatedAt"` // RFC 3339, UTC
	Message      string  `json:"message"`
}

// GradeSet holds exactly one ClosureStatus per fixed grade key
type GradeSet struct {
	Elementary ClosureStatus `json:"elementary"`
	Middle     ClosureStatus `json:"middle"`
	High       ClosureStatus `json:"high"`
	University ClosureStatus `json:"university"`
	Offices    ClosureStatus `json:"offices"`
}

// Get returns the status stored under a grade key
func (g GradeSet) Get(key string) (ClosureStatus, bool) {
	switch key {
	case GradeElementary:
		return g.Elementary, true
	case GradeMiddle:
		return g.Middle, true
	case GradeHigh:
		return g.High, true
	case GradeUniversity:
		return g.University, true
	case GradeOffices:
		return g.Offices, true
	}
	return ClosureStatus{}, false
}

// Set stores the status under a grade key. Unknown keys are ignored.
func (g *GradeSet) Set(key string, status ClosureStatus) {
	switch key {
	case GradeElementary:
		g.Elementary = status
	case GradeMiddle:
		g.Middle = status
	case GradeHigh:
		g.High = status
	case GradeUniversity:
		g.University = status
	case GradeOffices:
		g.Offices = status
	}
}

// AnalysisResult is the unit stored in the cache and returned to clients
type AnalysisResult struct {
	Overall  OverallStatus `json:"overall"`
	Grades   GradeSet      `json:"grades"`
	Provider string        `json:"provider,omitempty"` // producing model variant or "manual"

	// Diagnostics, only present when the model reply could not be parsed
	DebugRaw   string `json:"debugRaw,omitempty"`
	DebugError string `json:"debugError,omitempty"`
}

// UpdatedTime parses Overall.UpdatedAt, returning the zero time when it is not RFC 3339
func (r *AnalysisResult) UpdatedTime() time.Time {
	t, err := time.Parse(time.RFC3339, r.Overall.UpdatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTimestamp renders a timestamp the way updatedAt is stored
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
