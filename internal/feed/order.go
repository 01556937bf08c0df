package feed

import (
	"fmt"

	"github.com/sujalbistaa/kiwiblue/internal/models"
)

// interestFirst ranks profiles whose owner liked one of the poster's jobs
// ahead of everyone else. posterID is numeric so formatting it in is safe.
func interestFirst(posterID uint) string {
	return fmt.Sprintf("CASE WHEN EXISTS (SELECT 1 FROM interests WHERE interests.poster_id = %d AND interests.seeker_id = listings.owner_id) THEN 0 ELSE 1 END", posterID)
}

func dedupe(listings []models.Listing) []models.Listing {
	seen := make(map[uint]struct{}, len(listings))
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
