package localstore

import (
	"context"
	"encoding/json"
	"strings"
)

// LoadList decodes the JSON array stored under key. A missing or blank value yields an
// empty list; a value that does not parse is reported as a StorageError.
func LoadList[T any](ctx context.Context, store Store, key string) ([]T, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found || strings.TrimSpace(raw) == "" {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, NewDecodeError(key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// SaveList replaces the JSON array stored under key with items.
func SaveList[T any](ctx context.Context, store Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return NewEncodeError(key, err)
	}
	return store.Set(ctx, key, string(encoded))
}

// LoadValue decodes the JSON document stored under key into a value of type T.
func LoadValue[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var value T
	raw, found, err := store.Get(ctx, key)
	if err != nil || !found {
		return value, false, err
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return value, false, NewDecodeError(key, err)
	}
	return value, true, nil
}

// SaveValue encodes value as JSON and stores it under key.
func SaveValue[T any](ctx context.Context, store Store, key string, value T) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return NewEncodeError(key, err)
	}
	return store.Set(ctx, key, string(encoded))
}
