package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type animalDoc struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	History []string `json:"history"`
}

func mustEncode(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return b
}

func appendHistory(entry string) Mutator {
	return func(current json.RawMessage) (json.RawMessage, error) {
		var a animalDoc
		if err := json.Unmarshal(current, &a); err != nil {
			return nil, err
		}
		a.History = append([]string{entry}, a.History...)
		return json.Marshal(a)
	}
}

func TestMemoryStoreInsertListFind(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStore("")
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	ctx := context.Background()
	col := store.Collection("animals")

	for _, id := range []string{"ALEX", "MARTY", "GLORIA"} {
		if err := col.Insert(ctx, id, mustEncode(t, animalDoc{ID: id, Name: id})); err != nil {
			t.Fatalf("Insert(%s) error = %v", id, err)
		}
	}

	docs, err := col.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 3 || docs[0].ID != "ALEX" || docs[2].ID != "GLORIA" {
		t.Fatalf("List() order = %+v", docs)
	}

	doc, err := col.FindByID(ctx, "MARTY")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if doc.Version != 1 {
		t.Fatalf("Version = %d, want 1", doc.Version)
	}

	if _, err := col.FindByID(ctx, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByID(missing) error = %v, want ErrNotFound", err)
	}

	err = col.Insert(ctx, "ALEX", mustEncode(t, animalDoc{ID: "ALEX"}))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Insert(duplicate) error = %v, want ErrDuplicate", err)
	}

	other, err := store.Collection("staff_notification").List(ctx)
	if err != nil || len(other) != 0 {
		t.Fatalf("other collection = %v, %v; want empty", other, err)
	}
}

func TestMemoryStoreFindByField(t *testing.T) {
	t.Parallel()

	store, _ := NewMemoryStore("")
	ctx := context.Background()
	col := store.Collection("staff_notification")

	rows := []map[string]string{
		{"id": "n1", "destination_role": "VETERINARIAN"},
		{"id": "n2", "destination_role": "JANITOR"},
		{"id": "n3", "destination_role": "VETERINARIAN"},
	}
	for _, r := range rows {
		if err := col.Insert(ctx, r["id"], mustEncode(t, r)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := col.FindByField(ctx, "destination_role", "VETERINARIAN")
	if err != nil {
		t.Fatalf("FindByField() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "n1" || got[1].ID != "n3" {
		t.Fatalf("FindByField() = %+v", got)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	t.Parallel()

	store, _ := NewMemoryStore("")
	ctx := context.Background()
	col := store.Collection("animals")
	if err := col.Insert(ctx, "ALEX", mustEncode(t, animalDoc{ID: "ALEX"})); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := col.Update(ctx, "ALEX", appendHistory("first")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := col.Update(ctx, "ALEX", appendHistory("second")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	doc, _ := col.FindByID(ctx, "ALEX")
	a, err := Decode[animalDoc](doc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc.Version != 3 {
		t.Fatalf("Version = %d, want 3", doc.Version)
	}
	if len(a.History) != 2 || a.History[0] != "second" {
		t.Fatalf("History = %v", a.History)
	}

	if err := col.Update(ctx, "NOPE", appendHistory("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update(missing) error = %v, want ErrNotFound", err)
	}

	boom := errors.New("boom")
	err = col.Update(ctx, "ALEX", func(json.RawMessage) (json.RawMessage, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Update(mutator error) = %v, want boom", err)
	}
	after, _ := col.FindByID(ctx, "ALEX")
	if after.Version != 3 {
		t.Fatalf("failed mutation changed version to %d", after.Version)
	}
}

func TestMemoryStoreConcurrentUpdatesAreNotLost(t *testing.T) {
	t.Parallel()

	store, _ := NewMemoryStore("")
	ctx := context.Background()
	col := store.Collection("animals")
	if err := col.Insert(ctx, "ALEX", mustEncode(t, animalDoc{ID: "ALEX"})); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := col.Update(ctx, "ALEX", appendHistory(fmt.Sprintf("event-%d", i))); err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	doc, _ := col.FindByID(ctx, "ALEX")
	a, _ := Decode[animalDoc](doc)
	if len(a.History) != writers {
		t.Fatalf("History length = %d, want %d", len(a.History), writers)
	}
}

func TestMemoryStorePersistsAndReloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	col := store.Collection("animals")
	if err := col.Insert(ctx, "ALEX", mustEncode(t, animalDoc{ID: "ALEX"})); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := col.Insert(ctx, "MARTY", mustEncode(t, animalDoc{ID: "MARTY"})); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := col.Update(ctx, "ALEX", appendHistory("limping")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reloaded, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	docs, err := reloaded.Collection("animals").List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "ALEX" || docs[1].ID != "MARTY" {
		t.Fatalf("reloaded docs = %+v", docs)
	}
	a, _ := Decode[animalDoc](docs[0])
	if docs[0].Version != 2 || len(a.History) != 1 || a.History[0] != "limping" {
		t.Fatalf("reloaded ALEX = %+v (%+v)", docs[0], a)
	}
}

func TestMemoryStoreListReturnsCopies(t *testing.T) {
	t.Parallel()

	store, _ := NewMemoryStore("")
	ctx := context.Background()
	col := store.Collection("animals")
	_ = col.Insert(ctx, "ALEX", json.RawMessage(`{"id":"ALEX"}`))

	docs, _ := col.List(ctx)
	docs[0].Data[2] = 'X'

	again, _ := col.List(ctx)
	if string(again[0].Data) != `{"id":"ALEX"}` {
		t.Fatalf("stored data mutated through List result: %s", again[0].Data)
	}
}

func TestInsertValidation(t *testing.T) {
	t.Parallel()

	store, _ := NewMemoryStore("")
	col := store.Collection("animals")
	if err := col.Insert(context.Background(), " ", json.RawMessage(`{}`)); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Insert(empty id) = %v, want ErrInvalidID", err)
	}
	if err := col.Insert(context.Background(), "X", json.RawMessage(`{`)); err == nil {
		t.Fatal("Insert(invalid json) succeeded")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	s, err := Open("", "", nil, nil)
	if err != nil {
		t.Fatalf("Open(default) error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("Open(default) = %T, want *MemoryStore", s)
	}
	if _, err := Open("postgres", "", nil, nil); err == nil {
		t.Fatal("Open(postgres) without config succeeded")
	}
	if _, err := Open("cassandra", "", nil, nil); err == nil {
		t.Fatal("Open(unknown) succeeded")
	}
}
