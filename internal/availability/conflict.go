package availability

import "time"

// Overlaps is the half-open interval test: touching ranges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DetectConflicts returns the IDs of non-cancelled bookings of the candidate's
// employee that overlap the candidate, in input order.
func DetectConflicts(existing []Booking, candidate Candidate) []string {
	var ids []string
	for _, b := range existing {
		if b.Cancelled || b.EmployeeID != candidate.EmployeeID {
			continue
		}
		if candidate.ID != "" && b.ID == candidate.ID {
			continue
		}
		if Overlaps(candidate.Start, candidate.End, b.Start, b.End) {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// Pair identifies two bookings of the same employee that overlap.
type Pair struct {
	First  string
	Second string
}

// DetectOverlaps finds every overlapping pair among bookings. Input must be
// sorted by start time.
func DetectOverlaps(sorted []Booking) []Pair {
	var pairs []Pair
	for i, a := range sorted {
		if a.Cancelled {
			continue
		}
		for _, b := range sorted[i+1:] {
			if !b.Start.Before(a.End) {
				break
			}
			if b.Cancelled || b.EmployeeID != a.EmployeeID {
				continue
			}
			if Overlaps(a.Start, a.End, b.Start, b.End) {
				pairs = append(pairs, Pair{First: a.ID, Second: b.ID})
			}
		}
	}
	return pairs
}
