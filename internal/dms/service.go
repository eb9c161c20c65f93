package dms

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxTreeDepth bounds every ancestor walk and subtree enumeration.
const MaxTreeDepth = 64

// Options are the tunables of the lifecycle and upload coordinators.
type Options struct {
	// RetentionWindow is how long a trashed node is kept before purge.
	RetentionWindow time.Duration
	// BatchWorkers bounds concurrent gateway work within one batch.
	BatchWorkers int
	// PurgeBatchSize caps how many due trash entries one PurgeDue call handles.
	PurgeBatchSize int
	// ColdRestoreDays is how long a restored cold-tier copy stays readable.
	ColdRestoreDays int
	// PartURLExpiry is the lifetime of presigned part upload URLs.
	PartURLExpiry time.Duration
	// MultipartThreshold is the size from which uploads should use multipart.
	MultipartThreshold int64
	// PartSize is the recommended multipart part size.
	PartSize int64
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		RetentionWindow:    30 * 24 * time.Hour,
		BatchWorkers:       8,
		PurgeBatchSize:     500,
		ColdRestoreDays:    7,
		PartURLExpiry:      15 * time.Minute,
		MultipartThreshold: 100 * 1024 * 1024,
		PartSize:           8 * 1024 * 1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RetentionWindow <= 0 {
		o.RetentionWindow = d.RetentionWindow
	}
	if o.BatchWorkers <= 0 {
		o.BatchWorkers = d.BatchWorkers
	}
	if o.PurgeBatchSize <= 0 {
		o.PurgeBatchSize = d.PurgeBatchSize
	}
	if o.ColdRestoreDays <= 0 {
		o.ColdRestoreDays = d.ColdRestoreDays
	}
	if o.PartURLExpiry <= 0 {
		o.PartURLExpiry = d.PartURLExpiry
	}
	if o.MultipartThreshold <= 0 {
		o.MultipartThreshold = d.MultipartThreshold
	}
	if o.PartSize <= 0 {
		o.PartSize = d.PartSize
	}
	return o
}

// Dependencies are the collaborators of Service. Database and Gateway are
// required; the rest fall back to no-op or real implementations.
type Dependencies struct {
	Database Database
	Gateway  Gateway
	Sessions SessionStore
	Events   Publisher
	Logger   Logger
	Clock    Clock
	IDs      IDGenerator
	Observer Observer
}

// Service implements the tree, access, version, lifecycle and upload
// operations over a Database and a Gateway.
type Service struct {
	db       Database
	gateway  Gateway
	sessions SessionStore
	events   Publisher
	logger   Logger
	clock    Clock
	ids      IDGenerator
	observer Observer
	opts     Options
}

// NewService creates a Service. It panics if Database or Gateway is nil.
func NewService(deps Dependencies, opts Options) *Service {
	if deps.Database == nil || deps.Gateway == nil {
		panic("dms: NewService requires a Database and a Gateway")
	}
	s := &Service{
		db:       deps.Database,
		gateway:  deps.Gateway,
		sessions: deps.Sessions,
		events:   deps.Events,
		logger:   deps.Logger,
		clock:    deps.Clock,
		ids:      deps.IDs,
		observer: deps.Observer,
		opts:     opts.withDefaults(),
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.logger == nil {
		s.logger = NewNopLogger()
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.ids == nil {
		s.ids = UUIDGenerator{}
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	return s
}

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }

func (s *Service) observe(op string, start time.Time, errp *error) {
	s.observer.OperationCompleted(op, *errp, time.Since(start))
}

// callGateway runs fn, records its latency and wraps failures as ErrGatewayFailure.
func (s *Service) callGateway(op, call string, ref StorageRef, fn func() error) error {
	start := time.Now()
	err := fn()
	s.observer.GatewayCallCompleted(call, err, time.Since(start))
	if err != nil {
		s.logger.Warn("gateway call failed", "op", op, "call", call, "key", ref.Key, "version", ref.VersionID, "error", err)
		return gatewayFailure(op, ref, err)
	}
	return nil
}

// deleteObjects removes superseded objects. Failures leave orphaned objects
// behind and are only logged.
func (s *Service) deleteObjects(ctx context.Context, op string, refs []StorageRef) {
	for _, ref := range refs {
		err := s.callGateway(op, "delete", ref, func() error {
			return s.gateway.Delete(ctx, ref.Key, ref.VersionID)
		})
		if err != nil {
			s.logger.Warn("orphaned object left in storage", "key", ref.Key, "version", ref.VersionID)
		}
	}
}

func (s *Service) publish(e Event) {
	if e.Type == "" {
		return
	}
	if e.At.IsZero() {
		e.At = s.clock.Now()
	}
	s.events.Publish(e)
}

func (s *Service) logAction(ctx context.Context, st Store, fileID, actor string, action LogAction, detail string) error {
	entry := &ActionLogEntry{
		ID:      s.ids.New(),
		FileID:  fileID,
		ActorID: actor,
		Action:  action,
		Detail:  detail,
		At:      s.clock.Now(),
	}
	if err := st.InsertAction(ctx, entry); err != nil {
		return fmt.Errorf("recording %s action: %w", action, err)
	}
	return nil
}

// getNode loads a node, returning NotFound when it does not exist.
func getNode(ctx context.Context, st Store, op, field, id string) (*Node, error) {
	if id == "" {
		return nil, notFound(op, field, id)
	}
	n, err := st.GetNode(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", id, err)
	}
	if n == nil {
		return nil, notFound(op, field, id)
	}
	return n, nil
}

// liveNode loads a node that must not be in the trash.
func liveNode(ctx context.Context, st Store, op, field, id string) (*Node, error) {
	n, err := getNode(ctx, st, op, field, id)
	if err != nil {
		return nil, err
	}
	if n.IsTrashed() {
		return nil, notFound(op, field, id)
	}
	return n, nil
}

// ancestors returns n's ancestors nearest first, bounded by MaxTreeDepth.
func ancestors(ctx context.Context, st Store, op string, n *Node) ([]*Node, error) {
	var chain []*Node
	parentID := n.ParentID
	for parentID != "" {
		if len(chain) >= MaxTreeDepth {
			return nil, invalidState(op, "parent_id", fmt.Sprintf("tree deeper than %d levels", MaxTreeDepth))
		}
		p, err := st.GetNode(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("loading ancestor %s: %w", parentID, err)
		}
		if p == nil {
			break
		}
		chain = append(chain, p)
		parentID = p.ParentID
	}
	return chain, nil
}

// storeWriteErr maps uniqueness violations to Conflict.
func storeWriteErr(op, field, what string, err error) error {
	if errors.Is(err, ErrDuplicate) {
		return conflict(op, field, "name already in use")
	}
	return fmt.Errorf("%s: %w", what, err)
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Actions returns the action log of a node the actor can view.
func (s *Service) Actions(ctx context.Context, actor, nodeID string) ([]*ActionLogEntry, error) {
	const op = "Actions"
	n, err := getNode(ctx, s.db, op, "node_id", nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelViewer); err != nil {
		return nil, err
	}
	return s.db.ListActions(ctx, nodeID)
}

// Notifications returns the most recent notifications addressed to principal.
func (s *Service) Notifications(ctx context.Context, principal string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.db.ListNotifications(ctx, principal, limit)
}
