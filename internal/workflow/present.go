package workflow

import (
	"math"
	"sort"

	"github.com/clinicscore/drug-advisor/internal/models"
)

// Presentation is the ranked view of a probability vector.
type Presentation struct {
	// Best is the highest non-zero entry; nil when every entry rounds to zero.
	Best *models.ProbabilityEntry `json:"best,omitempty"`
	// Others holds the remaining non-zero entries, highest first.
	Others []models.ProbabilityEntry `json:"others"`
	// Chart holds every entry in vector order, zeros included.
	Chart []models.ProbabilityEntry `json:"chart"`
}

// Percent rounds a probability to the nearest whole percentage, halves up.
func Percent(p float64) int {
	return int(math.Floor(p*100 + 0.5))
}

// Derive maps vector positions to labels, rounds and ranks them.
func Derive(probabilities []float64, labelOf func(int) string) Presentation {
	chart := make([]models.ProbabilityEntry, len(probabilities))
	for i, p := range probabilities {
		chart[i] = models.ProbabilityEntry{Label: labelOf(i), Value: Percent(p)}
	}

	ranked := make([]models.ProbabilityEntry, 0, len(chart))
	for _, e := range chart {
		if e.Value > 0 {
			ranked = append(ranked, e)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })

	out := Presentation{Chart: chart, Others: []models.ProbabilityEntry{}}
	if len(ranked) > 0 {
		best := ranked[0]
		out.Best = &best
		out.Others = ranked[1:]
	}
	return out
}
