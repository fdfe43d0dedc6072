package branches

import (
	"sort"

	"github.com/zdziszkee/swift-registry/internal/bic"
	"github.com/zdziszkee/swift-registry/internal/models"
)

// Resolve returns the branches of parent found among candidates.
//
// A branch is an active, non-headquarters record sharing the parent's
// institution prefix. A parent that is not a headquarters has no children and
// yields nil; a headquarters without branches yields an empty slice. Results
// are ordered by swift code.
func Resolve(parent models.SwiftBank, candidates []models.SwiftBank) []models.SwiftBank {
	if !parent.IsHeadquarter {
		return nil
	}

	result := make([]models.SwiftBank, 0, len(candidates))
	for _, candidate := range candidates {
		if !isBranchOf(parent, candidate) {
			continue
		}
		result = append(result, candidate)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SwiftCode < result[j].SwiftCode
	})
	return result
}

// Project maps records to the public branch shape, preserving order.
func Project(records []models.SwiftBank) []models.BranchSummary {
	out := make([]models.BranchSummary, 0, len(records))
	for _, r := range records {
		out = append(out, r.Summary())
	}
	return out
}

func isBranchOf(parent, candidate models.SwiftBank) bool {
	return candidate.IsActive &&
		!candidate.IsHeadquarter &&
		candidate.SwiftCode != parent.SwiftCode &&
		bic.SamePrefix(candidate.SwiftCode, parent.SwiftCode)
}
