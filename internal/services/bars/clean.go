// Package bars holds the Bar Store's cleaning rules.
package bars

import (
	"sort"
	"time"

	"RegimeML/internal/domain/models"
)

// Report summarizes what Clean removed.
type Report struct {
	Input       int
	Duplicates  int
	NonPositive int
	Inverted    int
	Output      int
}

// Clean returns a new table without duplicate timestamps (first occurrence
// wins), without bars whose open, high, low or close is not positive, and
// without bars whose high is below their low, sorted ascending by time.
// The input is not modified and Clean(Clean(x)) equals Clean(x).
func Clean(in []models.Bar) []models.Bar {
	out, _ := CleanWithReport(in)
	return out
}

// CleanWithReport is Clean plus removal counts.
func CleanWithReport(in []models.Bar) ([]models.Bar, Report) {
	rep := Report{Input: len(in)}
	seen := make(map[time.Time]struct{}, len(in))
	out := make([]models.Bar, 0, len(in))
	for _, b := range in {
		key := b.Time.UTC()
		if _, dup := seen[key]; dup {
			rep.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		if !(b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0) {
			rep.NonPositive++
			continue
		}
		if b.High < b.Low {
			rep.Inverted++
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	rep.Output = len(out)
	return out, rep
}
