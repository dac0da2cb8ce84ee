// Package testutil provides shared fixtures for service and handler tests.
package testutil

import (
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/tag"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/storage/memory"
)

// Fixture is a seeded memory store with the entities most tests need: a
// geographic hierarchy, a pair of minor tags under one major, a plugger and
// an eligible achiever candidate.
type Fixture struct {
	Store *memory.Store

	Country  tag.Country
	Location tag.Location
	LGA      tag.LGA

	MajorTag tag.Tag
	Design   tag.Tag
	Writing  tag.Tag

	Plugger  user.User
	Achiever user.User
}

// NewFixture seeds a fresh store.
func NewFixture() *Fixture {
	store := memory.New()

	f := &Fixture{Store: store}

	f.Country = tag.Country{ID: "ng", Name: "Nigeria"}
	f.Location = store.PutLocation(tag.Location{ID: "lagos", Name: "Lagos", CountryID: "ng"})
	f.LGA = store.PutLGA(tag.LGA{ID: "ikeja", Name: "Ikeja", LocationID: "lagos"})

	f.MajorTag = store.PutTag(tag.Tag{ID: "creative", Name: "Creative", Kind: tag.KindMajor})
	f.Design = store.PutTag(tag.Tag{ID: "design", Name: "Design", Kind: tag.KindMinor, ParentID: "creative"})
	f.Writing = store.PutTag(tag.Tag{ID: "writing", Name: "Writing", Kind: tag.KindMinor, ParentID: "creative"})

	f.Plugger = store.PutUser(user.User{
		ID:       "plugger",
		Name:     "Ada",
		PlanType: user.PlanBusiness,
	})
	f.Achiever = store.PutUser(user.User{
		ID:              "achiever",
		Name:            "Chinedu",
		PlanType:        user.PlanBasic,
		ProfileVerified: true,
		SkillTagIDs:     []string{"design"},
		CountryID:       "ng",
		LocationID:      "lagos",
		LGAID:           "ikeja",
	})
	store.AddContent("achiever", "design")

	return f
}

// EligibleUser seeds one more user who passes every admission check for
// opportunities built by Opportunity.
func (f *Fixture) EligibleUser(id string) user.User {
	u := f.Store.PutUser(user.User{
		ID:              id,
		PlanType:        user.PlanBasic,
		ProfileVerified: true,
		SkillTagIDs:     []string{"design"},
		CountryID:       "ng",
		LocationID:      "lagos",
		LGAID:           "ikeja",
	})
	f.Store.AddContent(id, "design")
	return u
}

// Opportunity returns a valid create-ready opportunity owned by the seeded
// plugger, open to every plan, constrained to the seeded LGA.
func (f *Fixture) Opportunity() opportunity.Opportunity {
	return opportunity.Opportunity{
		Title:        "Logo design",
		Budget:       50000,
		Deadline:     time.Now().Add(72 * time.Hour).UTC(),
		Status:       opportunity.StatusAvailable,
		PluggerID:    "plugger",
		AllowedPlans: []string{user.PlanBasic, user.PlanProfessional, user.PlanBusiness},
		LGAID:        "ikeja",
		TagIDs:       []string{"design"},
	}
}
