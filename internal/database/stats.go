package database

import (
	"math"

	"moviegraph/internal/types"
)

// BuildReviewStats summarises a rating histogram.
func BuildReviewStats(movieID, title string, counts map[int]int) *types.ReviewStats {
	stats := &types.ReviewStats{
		MovieID:      movieID,
		MovieTitle:   title,
		Distribution: make(map[int]int, 11),
	}

	sum := 0
	for rating := 0; rating <= 10; rating++ {
		n := counts[rating]
		stats.Distribution[rating] = n
		if n == 0 {
			continue
		}
		stats.Total += n
		sum += rating * n
		r := rating
		if stats.Min == nil {
			stats.Min = &r
		}
		stats.Max = &r
	}

	if stats.Total > 0 {
		avg := math.Round(float64(sum)/float64(stats.Total)*100) / 100
		stats.Average = &avg
	}
	return stats
}
