package filter

import (
	"strings"
	"time"

	"imoflow/listing"
)

// Matches decides whether a listing satisfies a client's saved criteria using
// stored-filter semantics: the neighborhood set is matched by membership. Pure
// and deterministic; no side effects.
func Matches(l listing.Listing, c Criteria) bool {
	return MatchesAt(l, c, time.Now())
}

// MatchesLive is the live-search variant: neighborhoods match by prefix so a
// partially typed name still narrows results.
func MatchesLive(l listing.Listing, c Criteria) bool {
	return MatchesLiveAt(l, c, time.Now())
}

// MatchesAt evaluates with an explicit reference time for the freshness rule.
func MatchesAt(l listing.Listing, c Criteria, now time.Time) bool {
	return matches(l, c, now, false)
}

// MatchesLiveAt evaluates the live variant with an explicit reference time.
func MatchesLiveAt(l listing.Listing, c Criteria, now time.Time) bool {
	return matches(l, c, now, true)
}

func matches(l listing.Listing, c Criteria, now time.Time, prefix bool) bool {
	if c.DealType != "" && l.DealType != c.DealType {
		return false
	}

	// Budget applies only when both bounds are present; a listing with no
	// comparable price cannot satisfy a bounded budget.
	if c.MinPrice != nil && c.MaxPrice != nil {
		p := l.ComparablePrice()
		if p == nil || *p < *c.MinPrice || *p > *c.MaxPrice {
			return false
		}
	}

	if c.DealType == listing.DealRental && c.MinRent != nil && c.MaxRent != nil {
		if l.Price == nil || *l.Price < *c.MinRent || *l.Price > *c.MaxRent {
			return false
		}
	}

	if len(c.PropertyTypes) > 0 {
		if !containsName(c.PropertyTypes, listing.NormalizeName(l.PropertyType)) {
			return false
		}
	}

	// A listing with no timestamp at all is unknown, not excluded.
	if c.MaxDaysFresh != nil {
		if ts := l.BestKnownTime(); ts != nil {
			maxAge := time.Duration(*c.MaxDaysFresh) * 24 * time.Hour
			if now.Sub(*ts) > maxAge {
				return false
			}
		}
	}

	// Zero counts mean "data not collected" and pass any minimum. Land/lot
	// listings have no meaningful counts, so minimums are waived entirely.
	if !l.IsLandLot() {
		if !minOK(l.Bedrooms, c.MinBedrooms) ||
			!minOK(l.Bathrooms, c.MinBathrooms) ||
			!minOK(l.Parking, c.MinParking) ||
			!minOK(l.AreaM2, c.MinAreaM2) {
			return false
		}
	}

	if c.MaxAreaM2 != nil && l.AreaM2 != 0 && l.AreaM2 > *c.MaxAreaM2 {
		return false
	}

	if len(c.Neighborhoods) > 0 {
		name := l.NormalizedNeighborhood()
		found := false
		for _, target := range c.Neighborhoods {
			t := listing.NormalizeName(target)
			if t == "" {
				continue
			}
			if name == t || (prefix && strings.HasPrefix(name, t)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func minOK(value int, min *int) bool {
	if min == nil || value == 0 {
		return true
	}
	return value >= *min
}

func containsName(set []string, name string) bool {
	for _, s := range set {
		if listing.NormalizeName(s) == name {
			return true
		}
	}
	return false
}
