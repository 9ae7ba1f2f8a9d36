// Package session owns the client-side conversation state: the active
// document, its ordered turns, and the loading and error flags shown to the user.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/qa"
	"github.com/KaramelBytes/docqa-cli/internal/store"
	"go.uber.org/zap"
)

// User-facing messages for the error slot.
const (
	MsgLoadDocuments = "Failed to load saved documents. Please restart the session."
	MsgLoadHistory   = "Failed to load conversation history."
	MsgUpload        = "Upload failed. Please try again."
	MsgAsk           = "Failed to get answer. Please try again."
)

var (
	ErrUnknownDocument  = errors.New("unknown document")
	ErrNoActiveDocument = errors.New("no active document")
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrQuestionPending  = errors.New("a question is already awaiting its answer")
	// ErrTurnDiscarded is returned by SubmitQuestion when the document was
	// switched while the answer was outstanding.
	ErrTurnDiscarded = errors.New("question discarded by document switch")
)

// Service is the remote Document Q&A Service.
type Service interface {
	ListDocuments(ctx context.Context) ([]qa.Document, error)
	GetConversation(ctx context.Context, documentID string) ([]qa.Turn, error)
	UploadDocument(ctx context.Context, filename string, r io.Reader) (string, error)
	AskQuestion(ctx context.Context, documentID, question string) (string, error)
}

// Store persists the last active document id across restarts.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Options configures a Manager.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
	// OnChange receives a snapshot after every observable state change.
	OnChange func(Snapshot)
}

// Snapshot is a copy of the session state at one instant.
type Snapshot struct {
	Documents        []qa.Document
	ActiveDocumentID string
	Turns            []qa.Turn
	Loading          bool
	Pending          bool
	Error            string
}

// handle addresses the optimistic turn appended by SubmitQuestion.
type handle struct {
	epoch uint64
	index int
}

// Manager mediates every transition of the session. It is safe for
// concurrent use; no lock is held across a service call.
type Manager struct {
	svc      Service
	store    Store
	log      *zap.Logger
	now      func() time.Time
	onChange func(Snapshot)

	mu        sync.Mutex
	documents []qa.Document
	activeID  string
	turns     []qa.Turn
	pending   bool
	loading   int
	errMsg    string
	// epoch advances on every document switch; results tagged with an older
	// epoch belong to a discarded turn list.
	epoch     uint64
	cancelAsk context.CancelFunc
}

// NewManager wires a session to its collaborators.
func NewManager(svc Service, st Store, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		svc:      svc,
		store:    st,
		log:      opts.Logger,
		now:      opts.Now,
		onChange: opts.OnChange,
	}
}

// Start loads the document list and restores the last active document, if
// the store remembers one that the service still lists. Only a failed list
// load is returned; a failed history load is reported through the error slot.
func (m *Manager) Start(ctx context.Context) error {
	return m.StartWith(ctx, "")
}

// StartWith loads the document list and activates docID instead of the
// remembered document. An empty docID behaves like Start. ErrUnknownDocument
// is returned when the service does not list docID.
func (m *Manager) StartWith(ctx context.Context, docID string) error {
	if err := m.loadDocuments(ctx); err != nil {
		return err
	}
	id := docID
	if id == "" {
		remembered, ok, err := m.store.Get(store.KeyLastActiveDocument)
		if err != nil {
			m.log.Warn("read last active document", zap.Error(err))
			return nil
		}
		if !ok || remembered == "" {
			return nil
		}
		if !m.isKnown(remembered) {
			m.log.Warn("ignoring remembered document not listed by the service", zap.String("document_id", remembered))
			return nil
		}
		id = remembered
	}
	err := m.SelectDocument(ctx, id)
	if errors.Is(err, ErrUnknownDocument) {
		return err
	}
	if err != nil {
		m.log.Warn("restore conversation", zap.String("document_id", id), zap.Error(err))
	}
	return nil
}

func (m *Manager) loadDocuments(ctx context.Context) error {
	m.mu.Lock()
	m.loading++
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	docs, err := m.svc.ListDocuments(ctx)

	m.mu.Lock()
	m.loading--
	if err != nil {
		m.documents = nil
		m.errMsg = MsgLoadDocuments
	} else {
		m.documents = docs
	}
	snap = m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	if err != nil {
		m.log.Error("list documents", zap.Error(err))
		return fmt.Errorf("list documents: %w", err)
	}
	m.log.Info("documents loaded", zap.Int("count", len(docs)))
	return nil
}

// SelectDocument makes id the active document and replaces the turns with
// its fetched history. A question still awaiting its answer is cancelled.
func (m *Manager) SelectDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	if !m.isKnownLocked(id) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	epoch := m.switchLocked(id)
	m.loading++
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)
	m.log.Info("document selected", zap.String("document_id", id))

	return m.loadHistory(ctx, id, epoch)
}

// switchLocked installs id as the active document with an empty turn list.
func (m *Manager) switchLocked(id string) uint64 {
	if m.cancelAsk != nil {
		m.cancelAsk()
		m.cancelAsk = nil
	}
	m.epoch++
	m.activeID = id
	m.turns = nil
	m.pending = false
	return m.epoch
}

func (m *Manager) loadHistory(ctx context.Context, id string, epoch uint64) error {
	history, err := m.svc.GetConversation(ctx, id)

	m.mu.Lock()
	m.loading--
	if epoch != m.epoch {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.emit(snap)
		m.log.Debug("dropping history for a replaced session", zap.String("document_id", id))
		return nil
	}
	if err != nil {
		m.turns = nil
		m.errMsg = MsgLoadHistory
	} else {
		m.turns = resolved(history)
		m.errMsg = ""
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	if err != nil {
		m.log.Error("load conversation", zap.String("document_id", id), zap.Error(err))
		return fmt.Errorf("load conversation %s: %w", id, err)
	}
	return nil
}

// SubmitQuestion appends the question as a pending turn, asks the service,
// then fills in the answer or rolls the turn back.
func (m *Manager) SubmitQuestion(ctx context.Context, text string) (qa.Turn, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return qa.Turn{}, ErrEmptyQuestion
	}

	m.mu.Lock()
	if m.activeID == "" {
		m.mu.Unlock()
		return qa.Turn{}, ErrNoActiveDocument
	}
	if m.pending {
		m.mu.Unlock()
		return qa.Turn{}, ErrQuestionPending
	}
	h := m.appendPendingLocked(question)
	docID := m.activeID
	askCtx, cancel := context.WithCancel(ctx)
	m.cancelAsk = cancel
	m.loading++
	m.errMsg = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	answer, err := m.svc.AskQuestion(askCtx, docID, question)
	cancel()

	m.mu.Lock()
	m.loading--
	if h.epoch != m.epoch {
		snap = m.snapshotLocked()
		m.mu.Unlock()
		m.emit(snap)
		m.log.Info("dropping answer for a replaced session", zap.String("document_id", docID))
		return qa.Turn{}, ErrTurnDiscarded
	}
	m.cancelAsk = nil
	m.pending = false
	var turn qa.Turn
	if err != nil {
		m.evictLocked(h)
		m.errMsg = MsgAsk
	} else {
		m.turns[h.index].Answer = answer
		m.turns[h.index].Pending = false
		turn = m.turns[h.index]
	}
	snap = m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	if err != nil {
		m.log.Error("ask question", zap.String("document_id", docID), zap.Error(err))
		return qa.Turn{}, fmt.Errorf("ask question: %w", err)
	}
	return turn, nil
}

func (m *Manager) appendPendingLocked(question string) handle {
	m.turns = append(m.turns, qa.Turn{Question: question, Pending: true, AskedAt: m.now()})
	m.pending = true
	return handle{epoch: m.epoch, index: len(m.turns) - 1}
}

func (m *Manager) evictLocked(h handle) {
	if len(m.turns) == 1 {
		m.turns = nil
		return
	}
	turns := make([]qa.Turn, 0, len(m.turns)-1)
	turns = append(turns, m.turns[:h.index]...)
	turns = append(turns, m.turns[h.index+1:]...)
	m.turns = turns
}

// UploadDocument sends an already validated PDF. On success the new
// document becomes active with no turns and its id is remembered in the store.
func (m *Manager) UploadDocument(ctx context.Context, filename string, data []byte) (qa.Document, error) {
	m.mu.Lock()
	m.loading++
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)

	id, err := m.svc.UploadDocument(ctx, filename, bytes.NewReader(data))

	m.mu.Lock()
	m.loading--
	if err != nil {
		m.errMsg = MsgUpload
		snap = m.snapshotLocked()
		m.mu.Unlock()
		m.emit(snap)
		m.log.Error("upload document", zap.String("filename", filename), zap.Error(err))
		return qa.Document{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	doc := qa.Document{ID: id, Filename: filename, UploadedAt: m.now()}
	m.documents = append(m.documents, doc)
	m.switchLocked(id)
	m.errMsg = ""
	snap = m.snapshotLocked()
	m.mu.Unlock()

	if err := m.store.Set(store.KeyLastActiveDocument, id); err != nil {
		m.log.Warn("remember active document", zap.String("document_id", id), zap.Error(err))
	}
	m.emit(snap)
	m.log.Info("document uploaded", zap.String("document_id", id), zap.String("filename", filename))
	return doc, nil
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Documents returns the known documents in list order.
func (m *Manager) Documents() []qa.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]qa.Document(nil), m.documents...)
}

// Turns returns a copy of the current turn list.
func (m *Manager) Turns() []qa.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]qa.Turn(nil), m.turns...)
}

// ActiveDocument returns the active document, if any.
func (m *Manager) ActiveDocument() (qa.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.documents {
		if d.ID == m.activeID {
			return d, true
		}
	}
	return qa.Document{}, false
}

// Err returns the message in the error slot, or "".
func (m *Manager) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// ClearError acknowledges the current error.
func (m *Manager) ClearError() {
	m.mu.Lock()
	if m.errMsg == "" {
		m.mu.Unlock()
		return
	}
	m.errMsg = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emit(snap)
}

func (m *Manager) isKnown(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isKnownLocked(id)
}

func (m *Manager) isKnownLocked(id string) bool {
	for _, d := range m.documents {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Documents:        append([]qa.Document(nil), m.documents...),
		ActiveDocumentID: m.activeID,
		Turns:            append([]qa.Turn(nil), m.turns...),
		Loading:          m.loading > 0,
		Pending:          m.pending,
		Error:            m.errMsg,
	}
}

func (m *Manager) emit(s Snapshot) {
	if m.onChange != nil {
		m.onChange(s)
	}
}

// resolved copies fetched history, which never contains pending turns.
func resolved(history []qa.Turn) []qa.Turn {
	out := make([]qa.Turn, len(history))
	for i, t := range history {
		t.Pending = false
		out[i] = t
	}
	return out
}
