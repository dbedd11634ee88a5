package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrForeignLocator means the locator was not produced by this store.
	ErrForeignLocator = errors.New("locator does not belong to this store")
)

// Store persists opaque blobs under caller-chosen keys and hands back a
// public locator (URL) for each. Locators are the only handle callers keep;
// Fetch, Remove and Has accept locators, not keys.
type Store interface {
	Store(ctx context.Context, key, contentType string, data []byte) (string, error)
	Fetch(ctx context.Context, locator string) ([]byte, error)
	Remove(ctx context.Context, locator string) error
	Has(ctx context.Context, locator string) (bool, error)
	BaseURL() string
}

func locatorToKey(baseURL, locator string) (string, error) {
	key, ok := strings.CutPrefix(locator, baseURL+"/")
	if !ok || key == "" {
		return "", ErrForeignLocator
	}
	return key, nil
}
