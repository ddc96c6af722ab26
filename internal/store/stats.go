package store

import "github.com/jieqibox/openingbook/internal/book"

// computeStats scans every record. Stats are derived on demand and never
// stored.
func computeStats(idx *Index) book.Stats {
	stats := book.Stats{TotalPositions: uint64(idx.Positions())}
	for _, m := range idx.All() {
		stats.TotalMoves++
		stats.TotalWins += uint64(m.Wins)
		stats.TotalDraws += uint64(m.Draws)
		stats.TotalLosses += uint64(m.Losses)
		if m.Allowed {
			stats.AllowedMoves++
		}
	}
	return stats
}
