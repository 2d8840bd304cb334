package advisor

import (
	"fmt"

	"github.com/fxnlabs/occupancy/pkg/occclient"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func summarize(candidates []occclient.SweepCandidate) occclient.SweepSummary {
	var summary occclient.SweepSummary
	if len(candidates) == 0 {
		return summary
	}

	occupancies := make([]float64, len(candidates))
	for i, c := range candidates {
		occupancies[i] = c.Occupancy
		if c.ActiveBlocks == 0 {
			summary.ZeroOccupancy++
		}
	}

	summary.MeanOccupancy = stat.Mean(occupancies, nil)
	if len(occupancies) > 1 {
		summary.StdDevOccupancy = stat.StdDev(occupancies, nil)
	}
	// Candidates run largest first, so ties go to the larger block size.
	best := floats.MaxIdx(occupancies)
	summary.BestBlockSize = candidates[best].BlockSize
	summary.BestOccupancy = occupancies[best]
	return summary
}

func formatComputeCapability(major, minor int) string {
	return fmt.Sprintf("%d.%d", major, minor)
}
