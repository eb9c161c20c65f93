package testutil

import (
	"testing"
	"time"

	"dms/internal/database"
	"dms/internal/dms"
	"dms/internal/gateway"
	"dms/internal/sessions"
)

// TestService bundles a Service with the fakes behind it so tests can drive
// the clock, inspect storage and logs, and inject gateway or session store
// failures.
type TestService struct {
	*dms.Service

	DB            *database.SQLiteDatabase
	Objects       *gateway.MemoryGateway
	Gateway       *FailingGateway
	Sessions      *sessions.MemoryStore
	SessionFaults *FailingSessions
	Events        *RecordingPublisher
	Logs          *RecordingLogger
	Clock         *StubClock
	IDs           *StubIDGenerator
}

// NewTestService creates a Service over an in-memory database and gateway.
// opts may adjust the options before the service is built.
func NewTestService(t *testing.T, opts ...func(*dms.Options)) *TestService {
	t.Helper()

	o := dms.DefaultOptions()
	o.BatchWorkers = 4
	for _, fn := range opts {
		fn(&o)
	}

	clock := FixedClock()
	ts := &TestService{
		DB:       NewTestDatabase(t),
		Objects:  gateway.NewMemoryGateway(),
		Sessions: sessions.NewMemoryStore(time.Hour, clock),
		Events:   &RecordingPublisher{},
		Logs:     &RecordingLogger{},
		Clock:    clock,
		IDs:      NewStubIDGenerator(),
	}
	ts.Gateway = NewFailingGateway(ts.Objects)
	ts.SessionFaults = NewFailingSessions(ts.Sessions)
	ts.Service = dms.NewService(dms.Dependencies{
		Database: ts.DB,
		Gateway:  ts.Gateway,
		Sessions: ts.SessionFaults,
		Events:   ts.Events,
		Logger:   ts.Logs,
		Clock:    ts.Clock,
		IDs:      ts.IDs,
	}, o)
	return ts
}
