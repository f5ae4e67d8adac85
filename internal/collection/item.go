package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Items is one collection as persisted: item key to the item's JSON exactly
// as it was accepted. Stores hand the bytes back untouched, so entries this
// package cannot read survive every save.
type Items map[string]json.RawMessage

func (it Items) Keys() []string {
	keys := make([]string, 0, len(it))
	for k := range it {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (it Items) Clone() Items {
	out := make(Items, len(it))
	for k, v := range it {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// keyFields are tried in order to find the key of an item that arrives
// through sync.
var keyFields = []string{"dateKey", "key", "id"}

const versionField = "updatedAt"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// CheckName rejects collection names that could not double as a file name.
func CheckName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

// decodeFields reads an item far enough to merge and validate it. Numbers
// stay json.Number so schema checks see them as sent.
func decodeFields(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, ErrInvalidItem
	}
	return fields, nil
}

func keyOf(fields map[string]any) string {
	for _, f := range keyFields {
		if v, ok := fields[f].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// versionOf reports the item's updatedAt. An item without one is
// unversioned; one that is present but not a timestamp is an error.
func versionOf(fields map[string]any) (time.Time, bool, error) {
	v, ok := fields[versionField]
	if !ok || v == nil {
		return time.Time{}, false, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%w: %s is not a string", ErrInvalidTimestamp, versionField)
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// storedVersion is versionOf for an item already in the store, where any
// failure means the stored data is bad rather than the request.
func storedVersion(collection, key string, raw json.RawMessage) (time.Time, bool, error) {
	fields, err := decodeFields(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s/%s is not a JSON object", ErrCorruptItem, collection, key)
	}
	t, ok, err := versionOf(fields)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s/%s: %v", ErrCorruptItem, collection, key, err)
	}
	return t, ok, nil
}

func compact(raw json.RawMessage) json.RawMessage {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return raw
	}
	return b.Bytes()
}
