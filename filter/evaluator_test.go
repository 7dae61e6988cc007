package filter

import (
	"testing"
	"time"

	"imoflow/listing"
)

func i64(v int64) *int64 { return &v }
func ip(v int) *int      { return &v }

func saleListing() listing.Listing {
	return listing.Listing{
		ID:           "lst-1",
		DealType:     listing.DealSale,
		Price:        i64(500_000),
		Neighborhood: "Centro",
		Bedrooms:     3,
		Bathrooms:    2,
		Parking:      1,
		AreaM2:       90,
		PropertyType: "apartment",
	}
}

func TestMatches_DealTypeMismatch(t *testing.T) {
	l := saleListing()
	c := Criteria{DealType: listing.DealRental}

	if Matches(l, c) {
		t.Errorf("expected sale listing to fail rental criteria")
	}
}

func TestMatches_BudgetRequiresBothBounds(t *testing.T) {
	l := saleListing()

	if !Matches(l, Criteria{MinPrice: i64(600_000)}) {
		t.Errorf("expected lone min bound to be ignored")
	}
	if !Matches(l, Criteria{MaxPrice: i64(100_000)}) {
		t.Errorf("expected lone max bound to be ignored")
	}
	if Matches(l, Criteria{MinPrice: i64(100_000), MaxPrice: i64(400_000)}) {
		t.Errorf("expected bounded budget to exclude listing above max")
	}
	if !Matches(l, Criteria{MinPrice: i64(400_000), MaxPrice: i64(600_000)}) {
		t.Errorf("expected listing inside bounded budget to match")
	}
}

func TestMatches_NoComparablePriceFailsBoundedBudget(t *testing.T) {
	l := saleListing()
	l.Price = nil
	c := Criteria{MinPrice: i64(100_000), MaxPrice: i64(900_000)}

	if Matches(l, c) {
		t.Errorf("expected listing without price to fail a bounded budget")
	}
}

func TestMatches_RentalUsesTotalMonthly(t *testing.T) {
	l := listing.Listing{
		ID:           "lst-2",
		DealType:     listing.DealRental,
		Price:        i64(2_000),
		TotalMonthly: i64(2_800),
		PropertyType: "apartment",
	}
	c := Criteria{
		DealType: listing.DealRental,
		MinPrice: i64(1_000),
		MaxPrice: i64(2_500),
	}

	if Matches(l, c) {
		t.Errorf("expected total monthly cost, not base rent, to drive the budget")
	}

	c.MaxPrice = i64(3_000)
	if !Matches(l, c) {
		t.Errorf("expected listing to match once total monthly fits")
	}
}

func TestMatches_RentBoundsOnBaseRent(t *testing.T) {
	l := listing.Listing{
		ID:           "lst-3",
		DealType:     listing.DealRental,
		Price:        i64(2_000),
		TotalMonthly: i64(2_800),
		PropertyType: "apartment",
	}
	c := Criteria{
		DealType: listing.DealRental,
		MinRent:  i64(500),
		MaxRent:  i64(1_500),
	}

	if Matches(l, c) {
		t.Errorf("expected base rent above max rent to fail")
	}

	c.MaxRent = i64(2_500)
	if !Matches(l, c) {
		t.Errorf("expected base rent inside rent bounds to match")
	}
}

func TestMatches_ZeroCountsPassMinimums(t *testing.T) {
	l := saleListing()
	l.Bedrooms = 0
	c := Criteria{MinBedrooms: ip(2)}

	if !Matches(l, c) {
		t.Errorf("expected unknown bedroom count to pass the minimum")
	}

	l.Bedrooms = 1
	if Matches(l, c) {
		t.Errorf("expected known count below minimum to fail")
	}
}

func TestMatches_LandLotWaivesCountMinimums(t *testing.T) {
	l := saleListing()
	l.PropertyType = "Land"
	l.Bedrooms = 0
	l.Bathrooms = 0
	l.Parking = 0
	l.AreaM2 = 0
	c := Criteria{
		MinBedrooms:  ip(3),
		MinBathrooms: ip(2),
		MinParking:   ip(1),
		MinAreaM2:    ip(100),
	}

	if !Matches(l, c) {
		t.Errorf("expected land listing to waive all count minimums")
	}
}

func TestMatches_MaxAreaStillBoundsKnownValues(t *testing.T) {
	l := saleListing()
	l.AreaM2 = 200
	c := Criteria{MaxAreaM2: ip(150)}

	if Matches(l, c) {
		t.Errorf("expected known area above max to fail")
	}

	l.AreaM2 = 0
	if !Matches(l, c) {
		t.Errorf("expected unknown area to pass the max bound")
	}
}

func TestMatchesAt_Freshness(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)

	l := saleListing()
	c := Criteria{MaxDaysFresh: ip(7)}

	l.PublishedAt = &old
	if MatchesAt(l, c, now) {
		t.Errorf("expected stale listing to fail freshness")
	}

	l.PublishedAt = &recent
	if !MatchesAt(l, c, now) {
		t.Errorf("expected recent listing to pass freshness")
	}

	l.PublishedAt = nil
	l.FirstSeenAt = &old
	if MatchesAt(l, c, now) {
		t.Errorf("expected first-seen fallback to drive freshness")
	}

	l.FirstSeenAt = nil
	if !MatchesAt(l, c, now) {
		t.Errorf("expected listing with no timestamp to pass freshness")
	}
}

func TestMatches_NeighborhoodMembership(t *testing.T) {
	l := saleListing()
	l.Neighborhood = "Vila Madalena"
	c := Criteria{Neighborhoods: []string{"  VILA   Madalena ", "centro"}}

	if !Matches(l, c) {
		t.Errorf("expected normalized neighborhood membership to match")
	}

	c.Neighborhoods = []string{"vila"}
	if Matches(l, c) {
		t.Errorf("expected stored filter to require full membership, not prefix")
	}
}

func TestMatchesLive_NeighborhoodPrefix(t *testing.T) {
	l := saleListing()
	l.Neighborhood = "Vila Madalena"
	c := Criteria{Neighborhoods: []string{"vila mad"}}

	if !MatchesLive(l, c) {
		t.Errorf("expected live search to match by neighborhood prefix")
	}
	if Matches(l, c) {
		t.Errorf("expected stored filter to reject the same prefix")
	}
}

func TestMatches_PropertyTypes(t *testing.T) {
	l := saleListing()
	c := Criteria{PropertyTypes: []string{"House", " APARTMENT "}}

	if !Matches(l, c) {
		t.Errorf("expected normalized category membership to match")
	}

	c.PropertyTypes = []string{"house"}
	if Matches(l, c) {
		t.Errorf("expected category outside the set to fail")
	}
}

func TestMatches_EmptyCriteriaMatchesEverything(t *testing.T) {
	if !Matches(saleListing(), Criteria{}) {
		t.Errorf("expected empty criteria to match any listing")
	}
	if !Matches(listing.Listing{ID: "bare"}, Criteria{}) {
		t.Errorf("expected empty criteria to match a bare listing")
	}
}

func TestNormalize_DedupesAndDropsEmpties(t *testing.T) {
	c := Criteria{
		Neighborhoods: []string{" Centro ", "centro", "", "  ", "Moema"},
		PropertyTypes: []string{"APARTMENT", "apartment"},
	}
	c.Normalize()

	if len(c.Neighborhoods) != 2 || c.Neighborhoods[0] != "centro" || c.Neighborhoods[1] != "moema" {
		t.Errorf("expected deduped normalized neighborhoods, got %v", c.Neighborhoods)
	}
	if len(c.PropertyTypes) != 1 || c.PropertyTypes[0] != "apartment" {
		t.Errorf("expected deduped property types, got %v", c.PropertyTypes)
	}
}
