package eligibility

import (
	"context"

	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/storage"
)

// matchesSkills reports whether the user shares at least one tag with the
// opportunity or matches its required occupation.
func matchesSkills(opp opportunity.Opportunity, u user.User) bool {
	for _, tagID := range opp.TagIDs {
		if u.HasSkill(tagID) {
			return true
		}
	}
	return opp.OccupationID != "" && u.OccupationID == opp.OccupationID
}

// matchesLocation applies the location precedence rule: an LGA constraint
// requires the same LGA, a location constraint the same location, a
// country-only constraint any location within that country. No constraint
// matches everyone.
func matchesLocation(ctx context.Context, tags storage.TagStore, opp opportunity.Opportunity, u user.User) (bool, error) {
	switch {
	case opp.LGAID != "":
		return u.LGAID == opp.LGAID, nil
	case opp.LocationID != "":
		return u.LocationID == opp.LocationID, nil
	case opp.CountryID != "":
		if u.CountryID == opp.CountryID {
			return true, nil
		}
		if u.LocationID == "" {
			return false, nil
		}
		return tags.LocationInCountry(ctx, u.LocationID, opp.CountryID)
	default:
		return true, nil
	}
}
