package orgchart

import (
	"strings"

	"organigramm/internal/domain"
)

// Stats are the summary cards shown above the chart.
type Stats struct {
	Positions   int `json:"positions"`
	Departments int `json:"departments"`
	Filled      int `json:"filled"`
	Vacant      int `json:"vacant"`
	Levels      int `json:"levels"`
	Management  int `json:"management"`
}

// Summarize counts active positions only. Levels is the number of distinct
// Level values in use.
func Summarize(positions []domain.Position) Stats {
	var s Stats
	departments := map[string]bool{}
	levels := map[int]bool{}
	for _, p := range positions {
		if !p.Active {
			continue
		}
		s.Positions++
		if p.Department != nil {
			if d := strings.TrimSpace(*p.Department); d != "" {
				departments[strings.ToLower(d)] = true
			}
		}
		if p.Filled() {
			s.Filled++
		} else {
			s.Vacant++
		}
		if p.IsManagement {
			s.Management++
		}
		levels[p.Level] = true
	}
	s.Departments = len(departments)
	s.Levels = len(levels)
	return s
}
