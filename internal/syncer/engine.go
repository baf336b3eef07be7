// Package syncer reconciles the Local Store with an untrusted remote store.
// The engine is the only component allowed to talk to the remote adapter and
// the only sync-side writer into the Local Store.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	apperrors "github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
	"github.com/pagemark/pagemark/internal/seal"
)

// LocalStore is the slice of the store the engine needs. The device stays
// authoritative: the engine reads, marks-synced, and puts pulled notes — it
// never originates or deletes domain data.
type LocalStore interface {
	Put(n *note.Note) (*note.Note, error)
	GetChangedSince(sinceMs int64) ([]*note.Note, error)
	GetUnsyncedDeletions() ([]*note.DeletionRecord, error)
	MarkDeletionsSynced(ids []string) error
	HasDeletion(id string) (bool, error)
	LoadCursor() (*note.SyncCursor, error)
	SaveCursor(c *note.SyncCursor) error
}

// Status is the engine state exposed to UI indicators.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// placeholderTitle marks a pulled note that did not decrypt.
const placeholderTitle = "(unable to decrypt)"

const placeholderContent = "This note was received from the remote store but could not be " +
	"decrypted on this device. It is kept so nothing is lost; log in with the " +
	"correct secret and sync again to recover it."

// CycleResult summarizes one reconciliation cycle.
type CycleResult struct {
	CycleID        string `json:"cycle_id"`
	StartedAtMs    int64  `json:"started_at_ms"`
	Pushed         int    `json:"pushed"`
	Pulled         int    `json:"pulled"`
	Placeholders   int    `json:"placeholders"`
	DeletionsAcked int    `json:"deletions_acked"`
}

// inflightCycle carries one cycle's outcome to every trigger attached to it.
// res and err are written once, before done is closed; the close is the
// happens-before edge that lets waiters read them without the engine mutex.
type inflightCycle struct {
	done chan struct{}
	res  *CycleResult
	err  error
}

// Engine orchestrates periodic and on-demand reconciliation. Exactly one
// cycle is in flight at a time; a trigger that arrives while Syncing attaches
// to the in-flight cycle instead of queuing a duplicate request.
type Engine struct {
	store    LocalStore
	remote   RemoteStore
	keys     *seal.KeyContext
	userID   string
	interval time.Duration
	log      *logrus.Logger

	mu         sync.Mutex
	status     Status
	inflight   *inflightCycle
	lastResult *CycleResult
	lastErr    error

	subsMu sync.Mutex
	subs   []chan Status
}

// New creates a sync engine. The KeyContext is the session's derived key;
// constructing the engine on login and dropping it on logout gives key
// lifetime a clear boundary.
func New(store LocalStore, remote RemoteStore, keys *seal.KeyContext, userID string, interval time.Duration, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store:    store,
		remote:   remote,
		keys:     keys,
		userID:   userID,
		interval: interval,
		log:      log,
		status:   StatusIdle,
	}
}

// Status returns the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// LastResult returns the result of the most recently completed cycle, or nil.
func (e *Engine) LastResult() *CycleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}

// Subscribe returns a channel of status transitions. Slow consumers drop
// updates rather than blocking the engine.
func (e *Engine) Subscribe() <-chan Status {
	ch := make(chan Status, 8)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

// setStatus transitions the state machine and notifies subscribers.
// Caller must hold e.mu.
func (e *Engine) setStatus(s Status) {
	if e.status == s {
		return
	}
	e.status = s

	e.subsMu.Lock()
	for _, ch := range e.subs {
		select {
		case ch <- s:
		default:
		}
	}
	e.subsMu.Unlock()
}

// ManualSync runs one reconciliation cycle, or attaches to the cycle already
// in flight and returns its result. The returned error is for CLI display;
// the engine itself never becomes unusable on failure.
func (e *Engine) ManualSync(ctx context.Context) (*CycleResult, error) {
	e.mu.Lock()
	if e.status == StatusSyncing && e.inflight != nil {
		// Attach to the in-flight cycle. The outcome is read off the
		// cycle itself, not the engine fields: a later cycle may have
		// overwritten those by the time this waiter wakes up.
		inflight := e.inflight
		e.mu.Unlock()

		select {
		case <-inflight.done:
			return inflight.res, inflight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	inflight := &inflightCycle{done: make(chan struct{})}
	e.inflight = inflight
	e.setStatus(StatusSyncing)
	e.mu.Unlock()

	res, err := e.cycle(ctx)

	e.mu.Lock()
	e.lastResult, e.lastErr = res, err
	if err != nil {
		e.setStatus(StatusError)
	} else {
		e.setStatus(StatusIdle)
	}
	e.inflight = nil
	inflight.res, inflight.err = res, err
	close(inflight.done)
	e.mu.Unlock()

	return res, err
}

// Run triggers a cycle every interval until ctx is cancelled. Failures park
// the engine in Error and are retried on the next tick at the same fixed
// period; there is deliberately no backoff.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycleCtx, cancel := context.WithTimeout(ctx, e.interval)
			res, err := e.ManualSync(cycleCtx)
			cancel()
			if err != nil {
				e.log.WithError(err).Warn("sync cycle failed, will retry next tick")
				continue
			}
			e.log.WithFields(logrus.Fields{
				"cycle_id":  res.CycleID,
				"pushed":    res.Pushed,
				"pulled":    res.Pulled,
				"deletions": res.DeletionsAcked,
			}).Info("sync cycle complete")
		}
	}
}

// cycle performs one reconciliation pass. The cursor only advances on
// success, and to the cycle's start time rather than its completion time, so
// a note mutated during an in-flight sync is picked up next cycle.
func (e *Engine) cycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{
		CycleID:     ulid.Make().String(),
		StartedAtMs: time.Now().UnixMilli(),
	}
	log := e.log.WithField("cycle_id", result.CycleID)

	cursor, err := e.store.LoadCursor()
	if err != nil {
		return result, err
	}

	changed, err := e.store.GetChangedSince(cursor.LastSyncMs)
	if err != nil {
		return result, err
	}
	deletions, err := e.store.GetUnsyncedDeletions()
	if err != nil {
		return result, err
	}

	req := &ReconcileRequest{
		UserID:    e.userID,
		CycleID:   result.CycleID,
		Notes:     make([]SealedNote, 0, len(changed)),
		Deletions: make([]Deletion, 0, len(deletions)),
	}
	for _, n := range changed {
		sn, err := e.sealNote(n)
		if err != nil {
			return result, err
		}
		req.Notes = append(req.Notes, *sn)
	}
	deletionIDs := make([]string, 0, len(deletions))
	for _, d := range deletions {
		req.Deletions = append(req.Deletions, Deletion{ID: d.NoteID})
		deletionIDs = append(deletionIDs, d.NoteID)
	}
	result.Pushed = len(req.Notes)

	resp, err := e.remote.Reconcile(ctx, req)
	if err != nil {
		return result, err
	}

	for i := range resp.MissingNotes {
		sn := &resp.MissingNotes[i]

		// Resurrection guard: a locally deleted note stays deleted even if
		// the remote hands it back.
		deleted, err := e.store.HasDeletion(sn.ID)
		if err != nil {
			return result, err
		}
		if deleted {
			continue
		}

		pulled, err := e.openNote(sn)
		if apperrors.Is(err, apperrors.ErrDecryptionFailed) {
			log.WithField("note_id", sn.ID).Warn("pulled note did not decrypt, storing placeholder")
			pulled = placeholderNote(sn)
			result.Placeholders++
		} else if err != nil {
			return result, err
		}

		// Put is the only path by which the engine writes into the store.
		// A malformed remote record is skipped, not fatal: aborting here
		// would wedge every future cycle on the same bad note.
		if _, err := e.store.Put(pulled); err != nil {
			if apperrors.Is(err, apperrors.ErrValidation) {
				log.WithField("note_id", sn.ID).WithError(err).Warn("pulled note failed validation, skipping")
				continue
			}
			return result, err
		}
		result.Pulled++
	}

	if err := e.store.MarkDeletionsSynced(deletionIDs); err != nil {
		return result, err
	}
	result.DeletionsAcked = len(deletionIDs)

	if err := e.store.SaveCursor(&note.SyncCursor{LastSyncMs: result.StartedAtMs}); err != nil {
		return result, err
	}

	return result, nil
}

// sealNote seals title and content; domain, url, timestamps, and the hash
// stay plaintext for server-side indexing.
func (e *Engine) sealNote(n *note.Note) (*SealedNote, error) {
	titleSealed, err := seal.Seal([]byte(n.Title), e.keys)
	if err != nil {
		return nil, err
	}
	contentSealed, err := seal.Seal([]byte(n.Content), e.keys)
	if err != nil {
		return nil, err
	}

	return &SealedNote{
		ID:            n.ID,
		Domain:        n.Domain,
		URL:           n.URL,
		TitleSealed:   titleSealed,
		ContentSealed: contentSealed,
		ContentHash:   note.ContentHash(n.Title, n.Content),
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}, nil
}

// openNote opens a pulled note's envelopes.
func (e *Engine) openNote(sn *SealedNote) (*note.Note, error) {
	title, err := seal.Open(sn.TitleSealed, e.keys)
	if err != nil {
		return nil, err
	}
	content, err := seal.Open(sn.ContentSealed, e.keys)
	if err != nil {
		return nil, err
	}

	return &note.Note{
		ID:        sn.ID,
		Domain:    sn.Domain,
		URL:       sn.URL,
		Title:     string(title),
		Content:   string(content),
		CreatedAt: sn.CreatedAt,
	}, nil
}

// placeholderNote substitutes a visible marker for a note that failed to
// decrypt, rather than dropping it silently. IsPlaceholder keeps the marker
// out of GetChangedSince, so the placeholder text can never be sealed under
// the wrong key and pushed over the remote's good ciphertext.
func placeholderNote(sn *SealedNote) *note.Note {
	return &note.Note{
		ID:            sn.ID,
		Domain:        sn.Domain,
		URL:           sn.URL,
		Title:         placeholderTitle,
		Content:       placeholderContent,
		CreatedAt:     sn.CreatedAt,
		IsPlaceholder: true,
	}
}
