package listing

import (
	"strings"
	"time"
)

type DealType string

const (
	DealSale   DealType = "sale"
	DealRental DealType = "rental"
)

// Listing is an immutable external offer record. Numeric count fields use zero
// for "not collected"; price fields use nil for unknown so a genuine zero can
// be represented.
type Listing struct {
	ID               string
	DealType         DealType
	Price            *int64
	TotalMonthly     *int64
	Neighborhood     string
	NeighborhoodNorm string
	Bedrooms         int
	Bathrooms        int
	Parking          int
	AreaM2           int
	PropertyType     string
	PublishedAt      *time.Time
	FirstSeenAt      *time.Time
	URL              string
	ImageURL         string
	CreatedAt        time.Time
}

// ComparablePrice returns the value used for budget checks: total monthly cost
// for rentals, sale price otherwise. Nil means no comparable price is known.
func (l Listing) ComparablePrice() *int64 {
	if l.DealType == DealRental {
		return l.TotalMonthly
	}
	return l.Price
}

// BestKnownTime is the publish time, falling back to first-seen.
func (l Listing) BestKnownTime() *time.Time {
	if l.PublishedAt != nil {
		return l.PublishedAt
	}
	return l.FirstSeenAt
}

// IsLandLot reports whether the listing is a bare land/lot offer, which has no
// meaningful room or parking counts.
func (l Listing) IsLandLot() bool {
	switch NormalizeName(l.PropertyType) {
	case "land", "lot":
		return true
	default:
		return false
	}
}

// NormalizedNeighborhood prefers the stored normalized form and falls back to
// normalizing the raw name.
func (l Listing) NormalizedNeighborhood() string {
	if l.NeighborhoodNorm != "" {
		return l.NeighborhoodNorm
	}
	return NormalizeName(l.Neighborhood)
}

// NormalizeName lowercases, trims, and collapses internal whitespace so names
// compare the same regardless of how the source formatted them.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
