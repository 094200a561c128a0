// Package pace estimates where a reader currently is in a book from their
// logged page positions.
package pace

import (
	"math"
	"sort"
	"time"

	"bookshelf/internal/models"
)

// MinSinceLastSample is how long after the latest sample an estimate is
// offered at all.
const MinSinceLastSample = time.Hour

// span returns the first and last samples by timestamp
func span(samples []models.ReadingProgress) (first, last models.ReadingProgress) {
	sorted := make([]models.ReadingProgress, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted[0], sorted[len(sorted)-1]
}

// Rate returns the reading speed in pages per hour between the first and
// last sample. ok is false when fewer than two samples exist or the samples
// show no forward progress over positive time.
func Rate(samples []models.ReadingProgress) (pagesPerHour float64, ok bool) {
	if len(samples) < 2 {
		return 0, false
	}
	first, last := span(samples)

	pagesRead := float64(last.PageNumber - first.PageNumber)
	hoursElapsed := last.Timestamp.Sub(first.Timestamp).Hours()
	if hoursElapsed <= 0 || pagesRead <= 0 {
		return 0, false
	}
	return pagesRead / hoursElapsed, true
}

// EstimateCurrentPage extrapolates the current page linearly from the reading
// speed between the first and last sample.
//
// No estimate is made when:
// 1. fewer than two samples exist
// 2. the samples show no forward progress or no elapsed time
// 3. the last sample is less than an hour old
//
// The estimate never exceeds totalPages when totalPages is known.
func EstimateCurrentPage(samples []models.ReadingProgress, totalPages int, now time.Time) (int, bool) {
	rate, ok := Rate(samples)
	if !ok {
		return 0, false
	}
	_, last := span(samples)

	sinceLast := now.Sub(last.Timestamp)
	if sinceLast < MinSinceLastSample {
		return 0, false
	}

	estimate := int(math.Round(float64(last.PageNumber) + rate*sinceLast.Hours()))
	if totalPages > 0 && estimate > totalPages {
		estimate = totalPages
	}
	return estimate, true
}
