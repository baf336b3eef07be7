package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
	"github.com/pagemark/pagemark/internal/seal"
	"github.com/pagemark/pagemark/internal/store"
)

type fakeRemote struct {
	mu       sync.Mutex
	requests []*ReconcileRequest
	missing  []SealedNote
	err      error
	block    chan struct{}
}

func (f *fakeRemote) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ReconcileResponse{MissingNotes: f.missing}, nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRemote) lastRequest() *ReconcileRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func newTestEngine(t *testing.T, remote RemoteStore) (*Engine, *store.Store, *seal.KeyContext) {
	t.Helper()
	st, err := store.Open(t.TempDir(), note.LimitsFor(note.TierFree))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	kc := seal.Derive([]byte("correct horse battery staple"), make([]byte, 16))
	eng := New(st, remote, kc, "user-1", time.Minute, nil)
	return eng, st, kc
}

func putNote(t *testing.T, st *store.Store, domain, title, content string) *note.Note {
	t.Helper()
	saved, err := st.Put(&note.Note{
		ID:      uuid.NewString(),
		Domain:  domain,
		Title:   title,
		Content: content,
	})
	require.NoError(t, err)
	return saved
}

func TestManualSyncPushesChangedNotes(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, _ := newTestEngine(t, remote)

	putNote(t, st, "example.com", "First", "alpha")
	putNote(t, st, "example.com", "Second", "beta")

	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.Equal(t, 0, res.Pulled)
	assert.Equal(t, StatusIdle, eng.Status())

	req := remote.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "user-1", req.UserID)
	require.Len(t, req.Notes, 2)
	for _, sn := range req.Notes {
		assert.NotNil(t, sn.TitleSealed)
		assert.NotNil(t, sn.ContentSealed)
		assert.NotEmpty(t, sn.ContentHash)
	}
}

func TestManualSyncSealsBeforePush(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, kc := newTestEngine(t, remote)

	n := putNote(t, st, "example.com", "Secret title", "secret body")

	_, err := eng.ManualSync(context.Background())
	require.NoError(t, err)

	sn := remote.lastRequest().Notes[0]
	assert.NotContains(t, string(sn.TitleSealed.Encrypted), "Secret title")

	title, err := seal.Open(sn.TitleSealed, kc)
	require.NoError(t, err)
	assert.Equal(t, n.Title, string(title))
}

func TestManualSyncPullsMissingNotes(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, kc := newTestEngine(t, remote)

	id := uuid.NewString()
	titleSealed, err := seal.Seal([]byte("From another device"), kc)
	require.NoError(t, err)
	contentSealed, err := seal.Seal([]byte("remote body"), kc)
	require.NoError(t, err)
	remote.missing = []SealedNote{{
		ID:            id,
		Domain:        "example.com",
		TitleSealed:   titleSealed,
		ContentSealed: contentSealed,
		CreatedAt:     time.Now().UnixMilli(),
		UpdatedAt:     time.Now().UnixMilli(),
	}}

	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)
	assert.Equal(t, 0, res.Placeholders)

	got, err := st.Get(id, false)
	require.NoError(t, err)
	assert.Equal(t, "From another device", got.Title)
	assert.Equal(t, "remote body", got.Content)
}

func TestManualSyncSkipsLocallyDeletedPulls(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, kc := newTestEngine(t, remote)

	n := putNote(t, st, "example.com", "Doomed", "to be deleted")
	require.NoError(t, st.Delete(n.ID))

	titleSealed, err := seal.Seal([]byte("Doomed"), kc)
	require.NoError(t, err)
	contentSealed, err := seal.Seal([]byte("to be deleted"), kc)
	require.NoError(t, err)
	remote.missing = []SealedNote{{
		ID:            n.ID,
		Domain:        "example.com",
		TitleSealed:   titleSealed,
		ContentSealed: contentSealed,
	}}

	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pulled)

	// The delete was acked this cycle, so the row is gone rather than
	// resurrected.
	_, err = st.Get(n.ID, true)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestManualSyncStoresPlaceholderOnDecryptFailure(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, _ := newTestEngine(t, remote)

	otherKey := seal.Derive([]byte("wrong passphrase"), make([]byte, 16))
	id := uuid.NewString()
	titleSealed, err := seal.Seal([]byte("unreadable"), otherKey)
	require.NoError(t, err)
	contentSealed, err := seal.Seal([]byte("unreadable"), otherKey)
	require.NoError(t, err)
	remote.missing = []SealedNote{{
		ID:            id,
		Domain:        "example.com",
		TitleSealed:   titleSealed,
		ContentSealed: contentSealed,
	}}

	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)
	assert.Equal(t, 1, res.Placeholders)

	got, err := st.Get(id, false)
	require.NoError(t, err)
	assert.Equal(t, placeholderTitle, got.Title)
	assert.True(t, got.IsPlaceholder)
}

func TestPlaceholderIsNeverPushed(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, kc := newTestEngine(t, remote)

	otherKey := seal.Derive([]byte("someone else's passphrase"), make([]byte, 16))
	id := uuid.NewString()
	titleSealed, err := seal.Seal([]byte("good title"), otherKey)
	require.NoError(t, err)
	contentSealed, err := seal.Seal([]byte("good body"), otherKey)
	require.NoError(t, err)
	remote.missing = []SealedNote{{
		ID:            id,
		Domain:        "example.com",
		TitleSealed:   titleSealed,
		ContentSealed: contentSealed,
	}}

	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Placeholders)

	// The placeholder must never travel back: sealed under this device's
	// key it would replace the remote's only good ciphertext.
	remote.missing = nil
	res, err = eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pushed)
	assert.Empty(t, remote.lastRequest().Notes)

	// Once the note arrives decryptable, the placeholder is replaced and
	// the flag clears.
	titleSealed, err = seal.Seal([]byte("good title"), kc)
	require.NoError(t, err)
	contentSealed, err = seal.Seal([]byte("good body"), kc)
	require.NoError(t, err)
	remote.missing = []SealedNote{{
		ID:            id,
		Domain:        "example.com",
		TitleSealed:   titleSealed,
		ContentSealed: contentSealed,
	}}

	res, err = eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)

	got, err := st.Get(id, false)
	require.NoError(t, err)
	assert.Equal(t, "good title", got.Title)
	assert.False(t, got.IsPlaceholder)
}

func TestManualSyncSkipsMalformedPulledNote(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, kc := newTestEngine(t, remote)

	goodID := uuid.NewString()
	badTitle, err := seal.Seal([]byte("no domain"), kc)
	require.NoError(t, err)
	badContent, err := seal.Seal([]byte("x"), kc)
	require.NoError(t, err)
	goodTitle, err := seal.Seal([]byte("fine"), kc)
	require.NoError(t, err)
	goodContent, err := seal.Seal([]byte("y"), kc)
	require.NoError(t, err)
	remote.missing = []SealedNote{
		{ID: uuid.NewString(), TitleSealed: badTitle, ContentSealed: badContent}, // empty domain
		{ID: goodID, Domain: "example.com", TitleSealed: goodTitle, ContentSealed: goodContent},
	}

	// One malformed remote record must not wedge the cycle.
	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)
	assert.Equal(t, StatusIdle, eng.Status())

	_, err = st.Get(goodID, false)
	require.NoError(t, err)
}

func TestManualSyncAcksDeletions(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, _ := newTestEngine(t, remote)

	n := putNote(t, st, "example.com", "Gone soon", "x")
	require.NoError(t, st.Delete(n.ID))

	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletionsAcked)

	req := remote.lastRequest()
	require.Len(t, req.Deletions, 1)
	assert.Equal(t, n.ID, req.Deletions[0].ID)

	pending, err := st.GetUnsyncedDeletions()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestManualSyncAdvancesCursorToStartTime(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, _ := newTestEngine(t, remote)

	putNote(t, st, "example.com", "A", "a")

	before := time.Now().UnixMilli()
	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)

	cursor, err := st.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, res.StartedAtMs, cursor.LastSyncMs)
	assert.GreaterOrEqual(t, cursor.LastSyncMs, before)

	// Nothing changed since, so the next cycle pushes nothing new beyond
	// the note stamped at the same millisecond boundary at most.
	res2, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, res2.Pushed, 1)
}

func TestManualSyncRemoteFailureKeepsCursorAndState(t *testing.T) {
	remote := &fakeRemote{err: apperrors.NewNetworkUnavailable(errors.New("connection refused"))}
	eng, st, _ := newTestEngine(t, remote)

	n := putNote(t, st, "example.com", "Pending", "x")

	_, err := eng.ManualSync(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNetworkUnavailable))
	assert.Equal(t, StatusError, eng.Status())

	cursor, err := st.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor.LastSyncMs)

	// A failed cycle keeps its tombstones and retries cleanly.
	remote.err = nil
	res, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, StatusIdle, eng.Status())
	assert.Equal(t, n.ID, remote.lastRequest().Notes[0].ID)
}

func TestManualSyncCoalescesConcurrentTriggers(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	eng, st, _ := newTestEngine(t, remote)

	putNote(t, st, "example.com", "A", "a")

	type outcome struct {
		res *CycleResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := eng.ManualSync(context.Background())
		first <- outcome{res, err}
	}()

	require.Eventually(t, func() bool {
		return eng.Status() == StatusSyncing
	}, time.Second, time.Millisecond)

	second := make(chan outcome, 1)
	go func() {
		res, err := eng.ManualSync(context.Background())
		second <- outcome{res, err}
	}()

	close(remote.block)

	a := <-first
	b := <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, a.res.CycleID, b.res.CycleID)
	assert.Equal(t, 1, remote.calls())
}

func TestCoalescedWaiterGetsAttachedCycleResult(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	eng, st, _ := newTestEngine(t, remote)
	putNote(t, st, "example.com", "A", "a")

	type outcome struct {
		res *CycleResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := eng.ManualSync(context.Background())
		first <- outcome{res, err}
	}()
	require.Eventually(t, func() bool {
		return eng.Status() == StatusSyncing
	}, time.Second, time.Millisecond)

	second := make(chan outcome, 1)
	go func() {
		res, err := eng.ManualSync(context.Background())
		second <- outcome{res, err}
	}()

	close(remote.block)
	a := <-first
	b := <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)

	// A later cycle must not bleed into what the attached waiters saw.
	res3, err := eng.ManualSync(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.res.CycleID, res3.CycleID)
	assert.Equal(t, a.res.CycleID, b.res.CycleID)
	assert.Equal(t, res3.CycleID, eng.LastResult().CycleID)
}

func TestSubscribeObservesTransitions(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, _ := newTestEngine(t, remote)
	putNote(t, st, "example.com", "A", "a")

	ch := eng.Subscribe()
	_, err := eng.ManualSync(context.Background())
	require.NoError(t, err)

	var seen []Status
	for len(seen) < 2 {
		select {
		case s := <-ch:
			seen = append(seen, s)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for status transitions")
		}
	}
	assert.Equal(t, []Status{StatusSyncing, StatusIdle}, seen)
}

// memoryRemote behaves like the real remote store: it upserts pushed notes by
// id, drops deleted ones, and hands back everything the device did not just
// push.
type memoryRemote struct {
	mu    sync.Mutex
	notes map[string]SealedNote
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{notes: map[string]SealedNote{}}
}

func (m *memoryRemote) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pushed := map[string]bool{}
	for _, sn := range req.Notes {
		m.notes[sn.ID] = sn
		pushed[sn.ID] = true
	}
	for _, d := range req.Deletions {
		delete(m.notes, d.ID)
	}

	resp := &ReconcileResponse{}
	for id, sn := range m.notes {
		if !pushed[id] {
			resp.MissingNotes = append(resp.MissingNotes, sn)
		}
	}
	return resp, nil
}

func TestTwoDevicesConvergeOnUnion(t *testing.T) {
	remote := newMemoryRemote()
	engA, stA, _ := newTestEngine(t, remote)
	engB, stB, _ := newTestEngine(t, remote)

	noteA := putNote(t, stA, "example.com", "From device A", "a")
	noteB := putNote(t, stB, "example.com", "From device B", "b")

	for i := 0; i < 2; i++ {
		_, err := engA.ManualSync(context.Background())
		require.NoError(t, err)
		_, err = engB.ManualSync(context.Background())
		require.NoError(t, err)
	}

	for _, st := range []*store.Store{stA, stB} {
		notes, err := st.List(store.ListFilter{})
		require.NoError(t, err)
		require.Len(t, notes, 2)

		ids := map[string]bool{}
		for _, n := range notes {
			ids[n.ID] = true
		}
		assert.True(t, ids[noteA.ID])
		assert.True(t, ids[noteB.ID])
	}
}

func TestManualSyncIsIdempotentForPulls(t *testing.T) {
	remote := &fakeRemote{}
	eng, st, kc := newTestEngine(t, remote)

	id := uuid.NewString()
	titleSealed, err := seal.Seal([]byte("Repeat"), kc)
	require.NoError(t, err)
	contentSealed, err := seal.Seal([]byte("body"), kc)
	require.NoError(t, err)
	remote.missing = []SealedNote{{
		ID:            id,
		Domain:        "example.com",
		TitleSealed:   titleSealed,
		ContentSealed: contentSealed,
	}}

	_, err = eng.ManualSync(context.Background())
	require.NoError(t, err)
	_, err = eng.ManualSync(context.Background())
	require.NoError(t, err)

	notes, err := st.List(store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, notes, 1)
	assert.Equal(t, "Repeat", notes[0].Title)
}
