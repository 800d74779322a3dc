// Package docstore is a collection-scoped JSON document store with
// interchangeable memory, postgres and Upstash Redis backends.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrNotFound  = errors.New("docstore: document not found")
	ErrDuplicate = errors.New("docstore: document already exists")
	ErrConflict  = errors.New("docstore: concurrent update conflict")
	ErrInvalidID = errors.New("docstore: document id is empty")
)

// maxUpdateAttempts bounds compare-and-swap retries for backends that
// cannot hold a lock across the mutator.
const maxUpdateAttempts = 3

// Document is one stored record. Version starts at 1 and increases on every
// successful Update.
type Document struct {
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Mutator receives the current document body and returns its replacement.
// It may run more than once when a backend retries after a conflict, so it
// must not have side effects.
type Mutator func(current json.RawMessage) (json.RawMessage, error)

type Collection interface {
	List(ctx context.Context) ([]Document, error)
	FindByID(ctx context.Context, id string) (Document, error)
	FindByField(ctx context.Context, field, value string) ([]Document, error)
	Insert(ctx context.Context, id string, data json.RawMessage) error
	Update(ctx context.Context, id string, mutate Mutator) error
}

type Store interface {
	Collection(name string) Collection
	Close() error
}

// Decode unmarshals a document body into T.
func Decode[T any](doc Document) (T, error) {
	var out T
	if err := json.Unmarshal(doc.Data, &out); err != nil {
		return out, fmt.Errorf("docstore: decode %s: %w", doc.ID, err)
	}
	return out, nil
}

// DecodeAll unmarshals every document body into T, preserving order.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode marshals v into a document body.
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return b, nil
}

// fieldEquals reports whether the top-level string field equals value.
func fieldEquals(data json.RawMessage, field, value string) bool {
	res := gjson.GetBytes(data, escapeFieldPath(field))
	return res.Exists() && res.String() == value
}

// escapeFieldPath keeps gjson from treating dots or wildcards in a field
// name as path syntax.
func escapeFieldPath(field string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(field)
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	return nil
}

func validateBody(data json.RawMessage) error {
	if !json.Valid(data) {
		return errors.New("docstore: document body is not valid JSON")
	}
	return nil
}
