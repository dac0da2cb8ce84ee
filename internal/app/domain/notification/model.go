// Package notification defines the event vocabulary the dispatcher fans out.
package notification

import "time"

// EventKind identifies a notification event.
type EventKind string

const (
	EventNewOpportunity      EventKind = "NEW_OPPORTUNITY"
	EventApplication         EventKind = "OPPORTUNITY_APPLICATION"
	EventAchieverSet         EventKind = "OPPORTUNITY_ACHIEVER_SET"
	EventAchieverSetOthers   EventKind = "OPPORTUNITY_ACHIEVER_SET_OTHERS"
	EventReview              EventKind = "OPPORTUNITY_REVIEW"
	EventOpportunityDelete   EventKind = "OPPORTUNITY_DELETE"
	EventOpportunityExpiring EventKind = "OPPORTUNITY_EXPIRING"
	EventPlanExpiring        EventKind = "PLAN_EXPIRING"
)

// Message is one fan-out request handed to the dispatcher.
type Message struct {
	Event         EventKind
	RecipientIDs  []string
	OpportunityID string
	ActorID       string // user whose action triggered the event, if any
	IncludeEmail  bool
	CreatedAt     time.Time
}

// Notification is a persisted in-app notification row for one recipient.
type Notification struct {
	ID            string
	UserID        string
	Event         EventKind
	OpportunityID string
	ActorID       string
	Read          bool
	CreatedAt     time.Time
}
