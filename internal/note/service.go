package note

import (
	"context"
	"encoding/json"
	"fmt"

	"notesync/internal/collection"
)

// Service is the typed view of the notes collection. Merging and
// persistence are left to Items.
type Service struct {
	Items *collection.Service
}

const (
	defaultTagLimit = 50
	maxTagLimit     = 200
)

func decodeNote(raw json.RawMessage) (Note, error) {
	var n Note
	if err := json.Unmarshal(raw, &n); err != nil {
		return Note{}, fmt.Errorf("%w: note: %v", collection.ErrCorruptItem, err)
	}
	return n, nil
}

func decodeNotes(raws []json.RawMessage) ([]Note, error) {
	out := make([]Note, 0, len(raws))
	for _, raw := range raws {
		n, err := decodeNote(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// checked validates n and renders it the way it is stored.
func checked(n Note) (json.RawMessage, error) {
	if err := Validate(n); err != nil {
		return nil, err
	}
	if _, err := collection.ParseTimestamp(n.UpdatedAt); err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

func (s *Service) All(ctx context.Context) ([]Note, error) {
	raws, err := s.Items.All(ctx, CollectionName)
	if err != nil {
		return nil, err
	}
	return decodeNotes(raws)
}

func (s *Service) Get(ctx context.Context, key string) (Note, error) {
	raw, err := s.Items.Get(ctx, CollectionName, key)
	if err != nil {
		return Note{}, err
	}
	return decodeNote(raw)
}

// Upsert stores in under key unless the stored copy is at least as new.
// The second return value reports whether the write was applied; when it
// was not, the stored note is returned unchanged.
func (s *Service) Upsert(ctx context.Context, key string, in Note) (Note, bool, error) {
	if in.DateKey == "" {
		in.DateKey = key
	}
	raw, err := checked(in)
	if err != nil {
		return Note{}, false, err
	}
	stored, applied, err := s.Items.Upsert(ctx, CollectionName, key, raw)
	if err != nil {
		return Note{}, false, err
	}
	n, err := decodeNote(stored)
	if err != nil {
		return Note{}, false, err
	}
	return n, applied, nil
}

func (s *Service) Delete(ctx context.Context, key string) (bool, error) {
	return s.Items.Delete(ctx, CollectionName, key)
}

// Sync validates every incoming note before anything is merged, then hands
// the batch to the collection engine.
func (s *Service) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	incoming := req.incoming()
	raws := make([]json.RawMessage, 0, len(incoming))
	for i, n := range incoming {
		raw, err := checked(n)
		if err != nil {
			return SyncResult{}, fmt.Errorf("notes[%d]: %w", i, err)
		}
		raws = append(raws, raw)
	}

	res, err := s.Items.Sync(ctx, CollectionName, collection.SyncRequest{
		Items:        raws,
		LastSyncTime: req.LastSyncTime,
	})
	if err != nil {
		return SyncResult{}, err
	}
	notes, err := decodeNotes(res.Items)
	if err != nil {
		return SyncResult{}, err
	}
	return SyncResult{
		SyncResponse: SyncResponse{Notes: notes, Items: notes, ServerTime: res.ServerTime},
		Accepted:     res.Accepted,
		Rejected:     res.Rejected,
	}, nil
}

// Since returns notes whose updatedAt is strictly after raw.
func (s *Service) Since(ctx context.Context, raw string) ([]Note, error) {
	raws, err := s.Items.Since(ctx, CollectionName, raw)
	if err != nil {
		return nil, err
	}
	return decodeNotes(raws)
}

// Tags counts hashtags across all notes. limit outside 1..200 falls back to 50.
func (s *Service) Tags(ctx context.Context, prefix string, limit int) ([]TagCount, error) {
	if limit <= 0 || limit > maxTagLimit {
		limit = defaultTagLimit
	}
	notes, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return countTags(notes, prefix, limit), nil
}
