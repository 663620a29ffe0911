// Package session holds one participant's view of one open conversation.
//
// Local operations are optimistic: they change the in-memory ledger and
// notify observers before the document is written to the store. Writes that
// fail stay queued as pending operations until Retry succeeds, and remote
// snapshots are reconciled by replaying the queue on top of them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"fuwachat/internal/identity"
	"fuwachat/internal/ledger"
	"fuwachat/internal/logger"
	"fuwachat/internal/metrics"
	"fuwachat/internal/model"
	"fuwachat/internal/store"
)

var (
	ErrNotOpen        = errors.New("conversation is not open")
	ErrNotSender      = errors.New("only the sender may change a message")
	ErrNotParticipant = errors.New("not a participant of this conversation")
	// ErrOpening is returned while another open on the same session runs.
	ErrOpening = errors.New("another open is in progress")
	// ErrPendingRetry marks an operation that was applied locally but not
	// persisted. The store error is wrapped alongside it.
	ErrPendingRetry = errors.New("operation pending retry")
)

type State int

const (
	Closed State = iota
	Opening
	Open
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Catalog is a local cache of conversations consulted before the store.
// The directory implements it.
type Catalog interface {
	Conversation(id string) (model.Conversation, bool)
	Adopt(conv model.Conversation)
}

// Session is safe for concurrent use. Its mutex is never held across a
// store call because store subscriptions may deliver synchronously.
type Session struct {
	self    string
	store   store.Adapter
	catalog Catalog
	opts    []ledger.Option

	// persistMu orders writes so an older local snapshot never lands
	// after a newer one.
	persistMu sync.Mutex

	mu        sync.Mutex
	state     State
	conv      model.Conversation
	ledger    *ledger.Ledger
	revision  int64
	pending   []op
	seq       uint64
	unsub     store.Cancel
	observers map[uint64]func(model.Conversation)
	nextObs   uint64
}

// Option configures a Session.
type Option func(*Session)

// WithCatalog sets the local cache consulted first on open.
func WithCatalog(c Catalog) Option {
	return func(s *Session) { s.catalog = c }
}

// WithLedgerOptions passes options to every ledger the session builds.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(s *Session) { s.opts = append(s.opts, opts...) }
}

// New returns a closed session acting as self.
func New(self string, st store.Adapter, opts ...Option) *Session {
	s := &Session{
		self:      self,
		store:     st,
		ledger:    ledger.New(nil),
		observers: make(map[uint64]func(model.Conversation)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Self returns the acting participant.
func (s *Session) Self() string { return s.self }

// OpenWith opens the 1:1 conversation with peer, creating it when neither
// side has yet.
func (s *Session) OpenWith(ctx context.Context, peer string) (model.Conversation, error) {
	id, err := identity.DeriveConversationID(s.self, peer)
	if err != nil {
		return model.Conversation{}, err
	}
	participants := []string{s.self, peer}
	sort.Strings(participants)
	return s.open(ctx, id, participants)
}

// Open opens an existing conversation by id. It never creates one.
func (s *Session) Open(ctx context.Context, id string) (model.Conversation, error) {
	return s.open(ctx, id, nil)
}

func (s *Session) open(ctx context.Context, id string, participants []string) (model.Conversation, error) {
	s.mu.Lock()
	if s.state == Open && s.conv.ID == id {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	if s.state == Opening {
		s.mu.Unlock()
		return model.Conversation{}, fmt.Errorf("open %s: %w", id, ErrOpening)
	}
	prev := s.closeLocked()
	s.state = Opening
	s.mu.Unlock()
	if prev != nil {
		prev()
	}

	conv, err := s.resolve(ctx, id, participants)
	if err == nil && !conv.Has(s.self) {
		err = fmt.Errorf("conversation %s: %w", id, ErrNotParticipant)
	}
	if err != nil {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		return model.Conversation{}, err
	}

	s.mu.Lock()
	s.adoptLocked(conv)
	s.mu.Unlock()

	unsub, err := s.store.SubscribeConversation(ctx, id, s.onRemote)
	if err != nil {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		return model.Conversation{}, err
	}

	s.mu.Lock()
	s.unsub = unsub
	s.state = Open
	snap := s.snapshotLocked()
	s.mu.Unlock()
	metrics.OpenSessions.Inc()
	logger.Debug("session_opened", "participant", s.self, "conversation", id, "revision", snap.Revision)
	s.notify(snap)
	return snap, nil
}

// resolve runs the probe-then-create sequence. participants is nil when the
// caller only wants an existing conversation.
func (s *Session) resolve(ctx context.Context, id string, participants []string) (model.Conversation, error) {
	if s.catalog != nil {
		if conv, ok := s.catalog.Conversation(id); ok {
			return conv, nil
		}
	}

	conv, err := s.store.Get(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Conversation{}, err
	}
	if participants == nil {
		return model.Conversation{}, err
	}

	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return model.Conversation{}, err
	}
	if exists {
		// lost the creation race
		return s.store.Get(ctx, id)
	}

	// Messages stay nil so that a concurrent creator's messages survive
	// the merge.
	conv, err = s.store.Put(ctx, model.Conversation{ID: id, Participants: participants})
	if err != nil {
		return model.Conversation{}, err
	}
	logger.Info("conversation_created", "conversation", id, "by", s.self)
	if s.catalog != nil {
		s.catalog.Adopt(conv)
	}
	return conv, nil
}

// Send appends a new message.
func (s *Session) Send(ctx context.Context, content, replyTo string) (model.Message, error) {
	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return model.Message{}, ErrNotOpen
	}
	m, err := s.ledger.Append(s.self, content, replyTo)
	if err != nil {
		s.mu.Unlock()
		return model.Message{}, err
	}
	s.enqueueLocked(op{kind: opAppend, msg: m})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return m, s.persist(ctx)
}

// Reply sends content as an answer to message id.
func (s *Session) Reply(ctx context.Context, id, content string) (model.Message, error) {
	if id == "" {
		return model.Message{}, fmt.Errorf("reply target: %w", ledger.ErrMessageNotFound)
	}
	return s.Send(ctx, content, id)
}

// Edit replaces the content of one of the caller's messages.
func (s *Session) Edit(ctx context.Context, id, content string) (model.Message, error) {
	if content == "" {
		return model.Message{}, ledger.ErrEmptyContent
	}
	return s.change(ctx, opEdit, id, content)
}

// Delete tombstones one of the caller's messages.
func (s *Session) Delete(ctx context.Context, id string) (model.Message, error) {
	return s.change(ctx, opDelete, id, "")
}

func (s *Session) change(ctx context.Context, kind opKind, id, content string) (model.Message, error) {
	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return model.Message{}, ErrNotOpen
	}
	cur, ok := s.ledger.Get(id)
	if !ok {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("message %s: %w", id, ledger.ErrMessageNotFound)
	}
	if cur.Sender != s.self {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotSender)
	}
	m, err := s.ledger.EditOrDelete(id, content)
	if err != nil {
		s.mu.Unlock()
		return model.Message{}, err
	}
	s.enqueueLocked(op{kind: kind, id: id, content: content})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return m, s.persist(ctx)
}

// Retry writes the local state again while operations are pending.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return ErrNotOpen
	}
	n := len(s.pending)
	s.mu.Unlock()
	if n == 0 {
		return nil
	}
	return s.persist(ctx)
}

// Pending reports how many local operations have not been persisted.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return ErrNotOpen
	}
	if len(s.pending) == 0 {
		// an earlier write already carried these operations
		s.mu.Unlock()
		return nil
	}
	doc := model.Conversation{
		ID:           s.conv.ID,
		Participants: append([]string(nil), s.conv.Participants...),
		Messages:     s.ledger.Messages(),
	}
	through := s.seq
	s.mu.Unlock()

	stored, err := s.store.Put(ctx, doc)
	if err != nil {
		logger.Warn("session_put_failed", "participant", s.self, "conversation", doc.ID, "pending", s.Pending(), "error", err)
		return fmt.Errorf("%w: %w", ErrPendingRetry, err)
	}

	s.mu.Lock()
	s.ackLocked(through)
	adopted := false
	if stored.Revision > s.revision {
		s.adoptLocked(stored)
		adopted = true
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if adopted {
		s.notify(snap)
	}
	return nil
}

func (s *Session) onRemote(conv model.Conversation) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	if conv.Revision <= s.revision {
		s.mu.Unlock()
		logger.Debug("session_stale_push", "conversation", conv.ID, "revision", conv.Revision, "seen", s.revision)
		return
	}
	s.adoptLocked(conv)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// adoptLocked replaces the local document with conv and replays pending
// operations on top of it.
func (s *Session) adoptLocked(conv model.Conversation) {
	s.conv = conv.Clone()
	s.revision = conv.Revision
	s.ledger = ledger.New(conv.Messages, s.opts...)

	before := len(s.pending)
	kept := s.pending[:0]
	for _, o := range s.pending {
		switch o.replay(s.ledger) {
		case opApplied:
			kept = append(kept, o)
		case opImpossible:
			logger.Warn("session_pending_dropped", "conversation", conv.ID, "op", o.kind.String(), "message", o.target())
		}
	}
	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = op{}
	}
	s.pending = kept
	metrics.PendingOps.Add(float64(len(kept) - before))
}

func (s *Session) enqueueLocked(o op) {
	s.seq++
	o.seq = s.seq
	s.pending = append(s.pending, o)
	metrics.PendingOps.Inc()
}

// ackLocked drops operations covered by a successful put.
func (s *Session) ackLocked(through uint64) {
	before := len(s.pending)
	kept := s.pending[:0]
	for _, o := range s.pending {
		if o.seq > through {
			kept = append(kept, o)
		}
	}
	s.pending = kept
	metrics.PendingOps.Add(float64(len(kept) - before))
}

func (s *Session) snapshotLocked() model.Conversation {
	out := s.conv.Clone()
	out.Messages = s.ledger.Messages()
	return out
}

// Snapshot returns the local view including unpersisted operations.
func (s *Session) Snapshot() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResolveReply returns the message m answers, if it is in this conversation.
func (s *Session) ResolveReply(m model.Message) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ResolveReply(m)
}

// Watch registers fn for every change of the local view. The returned
// function unregisters it.
func (s *Session) Watch(fn func(model.Conversation)) func() {
	s.mu.Lock()
	s.nextObs++
	key := s.nextObs
	s.observers[key] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, key)
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify(conv model.Conversation) {
	s.mu.Lock()
	fns := make([]func(model.Conversation), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(conv.Clone())
	}
}

// Close releases the store subscription. Pending operations are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	unsub := s.closeLocked()
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *Session) closeLocked() store.Cancel {
	if s.state == Open {
		metrics.OpenSessions.Dec()
	}
	if len(s.pending) > 0 {
		logger.Warn("session_closed_with_pending", "participant", s.self, "conversation", s.conv.ID, "pending", len(s.pending))
		metrics.PendingOps.Sub(float64(len(s.pending)))
		s.pending = nil
	}
	unsub := s.unsub
	s.unsub = nil
	s.state = Closed
	s.revision = 0
	s.conv = model.Conversation{}
	s.ledger = ledger.New(nil, s.opts...)
	return unsub
}
