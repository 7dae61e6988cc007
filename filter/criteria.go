package filter

import (
	"time"

	"imoflow/listing"
)

// Criteria is a client's saved search filter, one-to-one with the client row
// and replaced wholesale on every save. Nil numeric fields mean "unbounded",
// never zero.
type Criteria struct {
	ClientID      string
	Active        bool
	DealType      listing.DealType
	MinPrice      *int64
	MaxPrice      *int64
	MinRent       *int64
	MaxRent       *int64
	Neighborhoods []string
	MinBedrooms   *int
	MinBathrooms  *int
	MinParking    *int
	MinAreaM2     *int
	MaxAreaM2     *int
	MaxDaysFresh  *int
	PropertyTypes []string
	UpdatedAt     time.Time
}

// Normalize collapses the neighborhood and category sets to normalized,
// de-duplicated members. Safe to call repeatedly.
func (c *Criteria) Normalize() {
	c.Neighborhoods = normalizeSet(c.Neighborhoods)
	c.PropertyTypes = normalizeSet(c.PropertyTypes)
}

// Normalized returns a normalized copy without mutating the receiver.
func (c Criteria) Normalized() Criteria {
	out := c
	out.Normalize()
	return out
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := listing.NormalizeName(v)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// SearchQuery derives the coarse store query for this criteria set. The exact
// decision still goes through Matches.
func (c Criteria) SearchQuery(limit int) listing.SearchQuery {
	return listing.SearchQuery{
		DealType:      c.DealType,
		MinPrice:      c.MinPrice,
		MaxPrice:      c.MaxPrice,
		Neighborhoods: normalizeSet(c.Neighborhoods),
		Limit:         limit,
	}
}
