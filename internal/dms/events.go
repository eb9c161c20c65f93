package dms

import "time"

// EventType names a domain event.
type EventType string

const (
	EventAccessGranted          EventType = "access_granted"
	EventAccessRevoked          EventType = "access_revoked"
	EventShareRequested         EventType = "share_requested"
	EventShareApproved          EventType = "share_approved"
	EventShareRejected          EventType = "share_rejected"
	EventAccessUpgradeRequested EventType = "access_upgrade_requested"
	EventAccessUpgradeApproved  EventType = "access_upgrade_approved"
	EventAccessUpgradeRejected  EventType = "access_upgrade_rejected"
)

// Event is emitted after the mutation it describes has committed.
type Event struct {
	Type      EventType
	FileID    string
	FileName  string
	OwnerID   string
	ActorID   string
	TargetID  string
	Level     AccessLevel
	RequestID string
	Reason    string
	At        time.Time
}

// Publisher hands events to a delivery mechanism. Publish must not block the
// caller on delivery.
type Publisher interface {
	Publish(e Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

func requestEvent(kind RequestKind, status RequestStatus) EventType {
	switch {
	case kind == RequestUpgrade && status == RequestPending:
		return EventAccessUpgradeRequested
	case kind == RequestUpgrade && status == RequestApproved:
		return EventAccessUpgradeApproved
	case kind == RequestUpgrade:
		return EventAccessUpgradeRejected
	case status == RequestPending:
		return EventShareRequested
	case status == RequestApproved:
		return EventShareApproved
	default:
		return EventShareRejected
	}
}
