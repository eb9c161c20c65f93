package events

import (
	"context"
	"fmt"

	"dms/internal/dms"
)

// LogSink writes every event to a logger.
type LogSink struct {
	Logger dms.Logger
}

func (s LogSink) Handle(_ context.Context, e dms.Event) error {
	s.Logger.Info("event",
		"type", e.Type,
		"file_id", e.FileID,
		"owner", e.OwnerID,
		"actor", e.ActorID,
		"target", e.TargetID,
		"level", e.Level,
		"request_id", e.RequestID,
	)
	return nil
}

// NotificationSink records a notification for the principal an event is
// addressed to.
type NotificationSink struct {
	store dms.Store
	ids   dms.IDGenerator
	clock dms.Clock
}

// NewNotificationSink creates a sink writing to store. Nil ids and clock fall
// back to UUIDs and the real clock.
func NewNotificationSink(store dms.Store, ids dms.IDGenerator, clock dms.Clock) *NotificationSink {
	if ids == nil {
		ids = dms.UUIDGenerator{}
	}
	if clock == nil {
		clock = dms.RealClock{}
	}
	return &NotificationSink{store: store, ids: ids, clock: clock}
}

func (s *NotificationSink) Handle(ctx context.Context, e dms.Event) error {
	recipient := Recipient(e)
	if recipient == "" || recipient == e.ActorID {
		return nil
	}
	at := e.At
	if at.IsZero() {
		at = s.clock.Now()
	}
	n := &dms.Notification{
		ID:          s.ids.New(),
		RecipientID: recipient,
		EventType:   e.Type,
		FileID:      e.FileID,
		ActorID:     e.ActorID,
		Level:       e.Level,
		Message:     Message(e),
		CreatedAt:   at,
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("recording notification for %s: %w", recipient, err)
	}
	return nil
}

// Recipient returns who should be told about e. Requests go to the owner,
// decisions and grant changes to the affected principal.
func Recipient(e dms.Event) string {
	switch e.Type {
	case dms.EventShareRequested, dms.EventAccessUpgradeRequested:
		return e.OwnerID
	case dms.EventAccessGranted, dms.EventAccessRevoked,
		dms.EventShareApproved, dms.EventShareRejected,
		dms.EventAccessUpgradeApproved, dms.EventAccessUpgradeRejected:
		return e.TargetID
	default:
		return ""
	}
}

// Message renders a one-line human description of e.
func Message(e dms.Event) string {
	name := e.FileName
	if name == "" {
		name = e.FileID
	}
	var msg string
	switch e.Type {
	case dms.EventAccessGranted:
		msg = fmt.Sprintf("%s gave you %s access to %q", e.ActorID, e.Level, name)
	case dms.EventAccessRevoked:
		msg = fmt.Sprintf("%s removed your access to %q", e.ActorID, name)
	case dms.EventShareRequested:
		msg = fmt.Sprintf("%s asks to share %q with %s as %s", e.ActorID, name, e.TargetID, e.Level)
	case dms.EventShareApproved:
		msg = fmt.Sprintf("%s approved %s access to %q", e.ActorID, e.Level, name)
	case dms.EventShareRejected:
		msg = fmt.Sprintf("%s rejected sharing %q with you", e.ActorID, name)
	case dms.EventAccessUpgradeRequested:
		msg = fmt.Sprintf("%s requests %s access to %q", e.ActorID, e.Level, name)
	case dms.EventAccessUpgradeApproved:
		msg = fmt.Sprintf("%s upgraded your access to %q to %s", e.ActorID, name, e.Level)
	case dms.EventAccessUpgradeRejected:
		msg = fmt.Sprintf("%s declined your %s access request for %q", e.ActorID, e.Level, name)
	default:
		msg = fmt.Sprintf("%s on %q", e.Type, name)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
