package note_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/collection"
	"notesync/internal/note"
	"notesync/internal/store"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newItems(repo collection.Repository) *collection.Service {
	return &collection.Service{
		Repo:       repo,
		Now:        func() time.Time { return fixedNow },
		Validators: map[string]collection.Validator{note.CollectionName: note.ValidateItem},
	}
}

func newService(t *testing.T) (*note.Service, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	return &note.Service{Items: newItems(repo)}, repo
}

func mk(key, content, updatedAt string) note.Note {
	return note.Note{DateKey: key, Content: content, UpdatedAt: updatedAt}
}

func seed(t *testing.T, repo collection.Repository, notes ...note.Note) {
	t.Helper()
	items := collection.Items{}
	for _, n := range notes {
		b, err := json.Marshal(n)
		require.NoError(t, err)
		items[n.DateKey] = b
	}
	require.NoError(t, repo.Save(context.Background(), note.CollectionName, items))
}

// failingRepo loads from an inner repo and refuses every save.
type failingRepo struct {
	collection.Repository
}

func (failingRepo) Save(context.Context, string, collection.Items) error {
	return errors.New("disk full")
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	got, applied, err := svc.Upsert(ctx, "2024-01-01", mk("2024-01-01", "a", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "a", got.Content)

	stored, err := svc.Get(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "a", stored.Content)
	assert.Equal(t, "2024-01-01T10:00:00Z", stored.UpdatedAt)

	// older write loses and the stored note comes back unchanged
	got, applied, err = svc.Upsert(ctx, "2024-01-01", mk("2024-01-01", "older", "2024-01-01T09:00:00Z"))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "a", got.Content)
	assert.Equal(t, "2024-01-01T10:00:00Z", got.UpdatedAt)

	stored, err = svc.Get(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "a", stored.Content)
}

func TestUpsertFillsKeyFromPath(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	got, _, err := svc.Upsert(ctx, "k", note.Note{Content: "x", UpdatedAt: "2024-01-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "k", got.DateKey)
}

func TestUpsertTieKeepsStored(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, _, err := svc.Upsert(ctx, "k", mk("k", "first", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)

	for _, ts := range []string{
		"2024-01-01T10:00:00Z",
		"2024-01-01T10:00:00+00:00",
		"2024-01-01T11:00:00+01:00",
		"2024-01-01T10:00:00",
		"2024-01-01T10:00Z",
		"2024-01-01T10:00+00:00",
		"2024-01-01T10:00:00z",
	} {
		got, applied, err := svc.Upsert(ctx, "k", mk("k", "second", ts))
		require.NoError(t, err, ts)
		assert.False(t, applied, ts)
		assert.Equal(t, "first", got.Content, ts)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	n := mk("k", "same", "2024-01-01T10:00:00Z")

	_, applied, err := svc.Upsert(ctx, "k", n)
	require.NoError(t, err)
	assert.True(t, applied)
	before, _ := repo.Load(ctx, note.CollectionName)

	_, applied, err = svc.Upsert(ctx, "k", n)
	require.NoError(t, err)
	assert.False(t, applied)
	after, _ := repo.Load(ctx, note.CollectionName)

	assert.Equal(t, before, after)
}

func TestLastWriteWinsInEitherOrder(t *testing.T) {
	older := mk("k", "old", "2024-01-01T10:00:00Z")
	newer := mk("k", "new", "2024-01-01T10:00:01Z")

	for name, order := range map[string][]note.Note{
		"older first": {older, newer},
		"newer first": {newer, older},
	} {
		t.Run("upsert "+name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService(t)
			for _, n := range order {
				_, _, err := svc.Upsert(ctx, "k", n)
				require.NoError(t, err)
			}
			got, err := svc.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "new", got.Content)
		})
		t.Run("sync "+name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService(t)
			for _, n := range order {
				_, err := svc.Sync(ctx, note.SyncRequest{Notes: []note.Note{n}})
				require.NoError(t, err)
			}
			got, err := svc.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "new", got.Content)
		})
	}
}

func TestUpsertRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, _, err := svc.Upsert(ctx, "k", mk("k", "x", "not a time"))
	assert.ErrorIs(t, err, collection.ErrInvalidTimestamp)

	_, _, err = svc.Upsert(ctx, "k", mk("k", "x", ""))
	var verr *note.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "updatedAt is required")

	_, err = svc.Get(ctx, "k")
	assert.ErrorIs(t, err, collection.ErrNotFound)
}

func TestUpsertChecksChatMessages(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	n := mk("k", "x", "2024-01-01T00:00:00Z")
	n.ChatMessages = []note.ChatMessage{
		{ID: "1", Role: "user", Content: "hi", Timestamp: "2024-01-01T00:00:00Z"},
		{Content: "no id, role or timestamp"},
	}
	_, _, err := svc.Upsert(ctx, "k", n)
	var verr *note.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{
		"chatMessages[1].id is required",
		"chatMessages[1].role is required",
		"chatMessages[1].timestamp is required",
	}, verr.Fields)

	// an empty message body is allowed
	n.ChatMessages[1] = note.ChatMessage{ID: "2", Role: "assistant", Timestamp: "2024-01-01T00:00:01Z"}
	_, applied, err := svc.Upsert(ctx, "k", n)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestUnreadableNoteSurvivesOtherWrites(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	require.NoError(t, repo.Save(ctx, note.CollectionName, collection.Items{
		"a": json.RawMessage(`{"dateKey":"a","content":"x","updatedAt":"2024-01-01T00:00:00Z"}`),
		"b": json.RawMessage(`{"dateKey":"b","content":"y","updatedAt":"2024-01-01T00:00:00Z","conversationStarted":"yes"}`),
	}))

	_, applied, err := svc.Upsert(ctx, "c", mk("c", "z", "2024-01-02T00:00:00Z"))
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.Load(ctx, note.CollectionName)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Contains(t, string(stored["b"]), `"conversationStarted":"yes"`)

	_, err = svc.Get(ctx, "b")
	assert.ErrorIs(t, err, collection.ErrCorruptItem)
	_, err = svc.All(ctx)
	assert.ErrorIs(t, err, collection.ErrCorruptItem)
}

func TestUpsertCorruptStoredNote(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	seed(t, repo, mk("k", "x", "garbage"))

	_, _, err := svc.Upsert(ctx, "k", mk("k", "y", "2024-01-01T00:00:00Z"))
	assert.ErrorIs(t, err, collection.ErrCorruptItem)
}

func TestUpsertSaveFailure(t *testing.T) {
	svc := &note.Service{Items: newItems(failingRepo{store.NewMemory()})}
	_, _, err := svc.Upsert(context.Background(), "k", mk("k", "x", "2024-01-01T00:00:00Z"))
	assert.ErrorContains(t, err, "disk full")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	removed, err := svc.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	_, _, err = svc.Upsert(ctx, "k", mk("k", "x", "2024-01-01T00:00:00Z"))
	require.NoError(t, err)

	removed, err = svc.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = svc.Get(ctx, "k")
	assert.ErrorIs(t, err, collection.ErrNotFound)

	removed, err = svc.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAllSortedByKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for _, k := range []string{"2024-01-03", "2024-01-01", "2024-01-02"} {
		_, _, err := svc.Upsert(ctx, k, mk(k, k, "2024-01-01T00:00:00Z"))
		require.NoError(t, err)
	}

	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-01-01", all[0].DateKey)
	assert.Equal(t, "2024-01-03", all[2].DateKey)
}

func TestSyncWithoutLastSyncTimeReturnsEverything(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	seed(t, repo,
		mk("a", "server a", "2024-01-01T00:00:00Z"),
		mk("b", "server b", "2023-01-01T00:00:00Z"),
	)

	res, err := svc.Sync(ctx, note.SyncRequest{Notes: []note.Note{mk("k", "x", "2024-01-02T00:00:00Z")}})
	require.NoError(t, err)

	assert.Len(t, res.Notes, 3)
	assert.Equal(t, res.Notes, res.Items)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 0, res.Rejected)
	assert.Equal(t, collection.FormatServerTime(fixedNow), res.ServerTime)
}

func TestSyncAcceptsItemsField(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	res, err := svc.Sync(ctx, note.SyncRequest{Items: []note.Note{mk("k", "x", "2024-01-02T00:00:00Z")}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)

	got, err := svc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)
}

func TestSyncUnparsableLastSyncTimeIsFullResync(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	seed(t, repo, mk("a", "x", "2000-01-01T00:00:00Z"))

	bad := "last tuesday"
	res, err := svc.Sync(ctx, note.SyncRequest{LastSyncTime: &bad})
	require.NoError(t, err)
	assert.Len(t, res.Notes, 1)

	empty := ""
	res, err = svc.Sync(ctx, note.SyncRequest{LastSyncTime: &empty})
	require.NoError(t, err)
	assert.Len(t, res.Notes, 1)
}

func TestSyncFiltersOnPostMergeTimestamps(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	seed(t, repo,
		mk("old", "server", "2024-01-01T00:00:00Z"),
		mk("new", "server", "2024-02-01T00:00:00Z"),
		mk("equal", "server", "2024-01-15T00:00:00Z"),
	)

	last := "2024-01-15T00:00:00Z"
	res, err := svc.Sync(ctx, note.SyncRequest{
		LastSyncTime: &last,
		Notes: []note.Note{
			// stale: rejected, and filtered on the server's 2024-01-01
			mk("old", "client", "2023-12-01T00:00:00Z"),
			// fresh insert after lastSyncTime
			mk("fresh", "client", "2024-01-20T00:00:00Z"),
			// insert before lastSyncTime: stored but not returned
			mk("quiet", "client", "2024-01-10T00:00:00Z"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)

	var keys []string
	for _, n := range res.Notes {
		keys = append(keys, n.DateKey)
	}
	assert.Equal(t, []string{"fresh", "new"}, keys)

	quiet, err := svc.Get(ctx, "quiet")
	require.NoError(t, err)
	assert.Equal(t, "client", quiet.Content)

	old, err := svc.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "server", old.Content)
}

func TestSyncAbortsWithoutSaving(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	_, err := svc.Sync(ctx, note.SyncRequest{Notes: []note.Note{
		mk("good", "x", "2024-01-01T00:00:00Z"),
		mk("bad", "x", "garbage"),
	}})
	assert.ErrorIs(t, err, collection.ErrInvalidTimestamp)

	items, err := repo.Load(ctx, note.CollectionName)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.Sync(ctx, note.SyncRequest{Notes: []note.Note{{Content: "no key", UpdatedAt: "2024-01-01T00:00:00Z"}}})
	var verr *note.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSyncCorruptStoredNote(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	seed(t, repo, mk("k", "x", "garbage"))

	last := "2024-01-01T00:00:00Z"
	_, err := svc.Sync(ctx, note.SyncRequest{
		LastSyncTime: &last,
		Notes:        []note.Note{mk("other", "x", "2024-02-01T00:00:00Z")},
	})
	assert.ErrorIs(t, err, collection.ErrCorruptItem)

	// the failed sync saved nothing
	items, err := repo.Load(ctx, note.CollectionName)
	require.NoError(t, err)
	assert.NotContains(t, items, "other")
}

func TestSince(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	seed(t, repo,
		mk("a", "x", "2024-01-01T00:00:00Z"),
		mk("b", "x", "2024-01-02T00:00:00Z"),
		mk("c", "x", "2024-01-03T00:00:00Z"),
	)

	got, err := svc.Since(ctx, "2024-01-02T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].DateKey)

	got, err = svc.Since(ctx, "2030-01-01")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = svc.Since(ctx, "nope")
	assert.ErrorIs(t, err, collection.ErrInvalidTimestamp)
}

func TestTagsLimitDefaults(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	var notes []note.Note
	for i := 0; i < 60; i++ {
		k := fmt.Sprintf("k%02d", i)
		notes = append(notes, mk(k, fmt.Sprintf("#tag%02d", i), "2024-01-01T00:00:00Z"))
	}
	seed(t, repo, notes...)

	got, err := svc.Tags(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 50)

	got, err = svc.Tags(ctx, "", 500)
	require.NoError(t, err)
	assert.Len(t, got, 50)

	got, err = svc.Tags(ctx, "tag0", 100)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestValidateItem(t *testing.T) {
	assert.NoError(t, note.ValidateItem(json.RawMessage(`{"dateKey":"k","content":"","updatedAt":"2024-01-01T00:00Z","extra":1}`)))

	var verr *note.ValidationError
	require.ErrorAs(t, note.ValidateItem(json.RawMessage(`{"dateKey":"k","updatedAt":"2024-01-01T00:00:00Z","conversationStarted":"yes"}`)), &verr)
	assert.Equal(t, []string{"conversationStarted must be bool"}, verr.Fields)

	require.ErrorAs(t, note.ValidateItem(json.RawMessage(`{"content":"x"}`)), &verr)
	assert.ElementsMatch(t, []string{"dateKey is required", "updatedAt is required"}, verr.Fields)

	assert.ErrorIs(t, note.ValidateItem(json.RawMessage(`{"dateKey":"k","updatedAt":"later"}`)), collection.ErrInvalidTimestamp)
}

func TestConcurrentUpsertsKeepNewest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := base.Add(time.Duration(i) * time.Second).Format(time.RFC3339)
			_, _, err := svc.Upsert(ctx, "k", mk("k", fmt.Sprint(i), ts))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := svc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "49", got.Content)
}
