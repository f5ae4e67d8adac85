// Package collection syncs named collections of JSON items with
// last-write-wins on each item's updatedAt.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Repository persists whole collections and the schema registry. Every
// backend in internal/store implements it.
type Repository interface {
	Load(ctx context.Context, collection string) (Items, error)
	Save(ctx context.Context, collection string, items Items) error
	// Collections names the collections holding at least one item.
	Collections(ctx context.Context) ([]string, error)
	LoadSchemas(ctx context.Context) (Items, error)
	SaveSchemas(ctx context.Context, schemas Items) error
}

// Validator checks an incoming item beyond its JSON Schema. Returned errors
// reach the caller unchanged.
type Validator func(item json.RawMessage) error

// Service applies last-write-wins to single writes and to bulk sync.
// Mutations hold mu for the whole load/merge/save so two writers in the
// same process cannot overwrite each other's save.
type Service struct {
	Repo       Repository
	Log        *zap.Logger
	Now        func() time.Time
	Validators map[string]Validator

	mu       sync.Mutex
	compiled map[string]compiledSchema
}

type SyncRequest struct {
	Items        []json.RawMessage
	LastSyncTime *string
}

// SyncResult carries the items the client has not seen. Accepted and
// Rejected count incoming items.
type SyncResult struct {
	Items      []json.RawMessage
	ServerTime string
	Accepted   int
	Rejected   int
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) load(ctx context.Context, collection string) (Items, error) {
	items, err := s.Repo.Load(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}
	if items == nil {
		items = Items{}
	}
	return items, nil
}

func (s *Service) save(ctx context.Context, collection string, items Items) error {
	if err := s.Repo.Save(ctx, collection, items); err != nil {
		return fmt.Errorf("save %s: %w", collection, err)
	}
	return nil
}

func (s *Service) Collections(ctx context.Context) ([]string, error) {
	names, err := s.Repo.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	sort.Strings(names)
	return names, nil
}

// All returns every item ordered by key. A stored item that is not a JSON
// object fails the call.
func (s *Service) All(ctx context.Context, collection string) ([]json.RawMessage, error) {
	if err := CheckName(collection); err != nil {
		return nil, err
	}
	items, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	return updatedAfter(collection, items, nil)
}

func (s *Service) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	if err := CheckName(collection); err != nil {
		return nil, err
	}
	items, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	raw, ok := items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if _, _, err := storedVersion(collection, key, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Upsert stores item under key unless the stored copy is at least as new.
// An item without updatedAt always replaces. The second return value
// reports whether the write was applied; when it was not, the stored item
// is returned unchanged.
func (s *Service) Upsert(ctx context.Context, collection, key string, item json.RawMessage) (json.RawMessage, bool, error) {
	if err := CheckName(collection); err != nil {
		return nil, false, err
	}
	fields, err := decodeFields(item)
	if err != nil {
		return nil, false, err
	}
	incomingAt, versioned, err := versionOf(fields)
	if err != nil {
		return nil, false, err
	}
	item = compact(item)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(ctx, collection, item, fields); err != nil {
		return nil, false, err
	}

	items, err := s.load(ctx, collection)
	if err != nil {
		return nil, false, err
	}

	if existing, ok := items[key]; ok && versioned {
		existingAt, hasVersion, err := storedVersion(collection, key, existing)
		if err != nil {
			return nil, false, err
		}
		if hasVersion && !incomingAt.After(existingAt) {
			s.log().Debug("stale upsert ignored",
				zap.String("collection", collection),
				zap.String("key", key),
				zap.Time("incoming", incomingAt),
				zap.Time("stored", existingAt),
			)
			return existing, false, nil
		}
	}

	items[key] = item
	if err := s.save(ctx, collection, items); err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// Delete removes key. It reports whether anything was removed; a missing
// key is not an error.
func (s *Service) Delete(ctx context.Context, collection, key string) (bool, error) {
	if err := CheckName(collection); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, collection)
	if err != nil {
		return false, err
	}
	if _, ok := items[key]; !ok {
		return false, nil
	}
	delete(items, key)
	if err := s.save(ctx, collection, items); err != nil {
		return false, err
	}
	return true, nil
}

// Sync merges the client's items into the collection and returns what the
// client has not seen since LastSyncTime. An empty or unparsable
// LastSyncTime means a full resync. Items with no key or no updatedAt are
// counted as rejected. Nothing is saved unless every incoming item merges
// cleanly and the response can be built.
func (s *Service) Sync(ctx context.Context, collection string, req SyncRequest) (SyncResult, error) {
	if err := CheckName(collection); err != nil {
		return SyncResult{}, err
	}
	serverTime := FormatServerTime(s.now())

	var lastSync *time.Time
	if req.LastSyncTime != nil && *req.LastSyncTime != "" {
		if t, err := ParseTimestamp(*req.LastSyncTime); err == nil {
			lastSync = &t
		} else {
			s.log().Debug("unparsable lastSyncTime, full resync", zap.String("lastSyncTime", *req.LastSyncTime))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, collection)
	if err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{ServerTime: serverTime}
	for i, raw := range req.Items {
		fields, err := decodeFields(raw)
		if err != nil {
			return SyncResult{}, fmt.Errorf("items[%d]: %w", i, err)
		}
		key := keyOf(fields)
		incomingAt, versioned, err := versionOf(fields)
		if err != nil {
			return SyncResult{}, fmt.Errorf("items[%d]: %w", i, err)
		}
		if key == "" || !versioned {
			res.Rejected++
			continue
		}
		raw = compact(raw)
		if err := s.validate(ctx, collection, raw, fields); err != nil {
			return SyncResult{}, fmt.Errorf("items[%d]: %w", i, err)
		}

		if existing, ok := items[key]; ok {
			existingAt, hasVersion, err := storedVersion(collection, key, existing)
			if err != nil {
				return SyncResult{}, err
			}
			if hasVersion && !incomingAt.After(existingAt) {
				res.Rejected++
				continue
			}
		}
		items[key] = raw
		res.Accepted++
	}

	out, err := updatedAfter(collection, items, lastSync)
	if err != nil {
		return SyncResult{}, err
	}
	if err := s.save(ctx, collection, items); err != nil {
		return SyncResult{}, err
	}

	res.Items = out
	return res, nil
}

// Since returns items whose updatedAt is strictly after raw. Unversioned
// items are never returned.
func (s *Service) Since(ctx context.Context, collection, raw string) ([]json.RawMessage, error) {
	if err := CheckName(collection); err != nil {
		return nil, err
	}
	since, err := ParseTimestamp(raw)
	if err != nil {
		return nil, err
	}
	items, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	return updatedAfter(collection, items, &since)
}

// updatedAfter returns items ordered by key, keeping only those newer than
// since when it is set.
func updatedAfter(collection string, items Items, since *time.Time) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, key := range items.Keys() {
		raw := items[key]
		at, hasVersion, err := storedVersion(collection, key, raw)
		if err != nil {
			return nil, err
		}
		if since != nil && (!hasVersion || !at.After(*since)) {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
