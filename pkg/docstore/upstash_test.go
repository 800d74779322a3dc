package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeUpstash interprets the handful of commands UpstashStore sends.
type fakeUpstash struct {
	t        *testing.T
	mu       sync.Mutex
	values   map[string]string
	lists    map[string][]string
	commands [][]any
	// casMisses forces the next N compare-and-swap calls to report a
	// version mismatch.
	casMisses int
}

func newFakeUpstash(t *testing.T) (*fakeUpstash, *UpstashStore) {
	t.Helper()
	f := &fakeUpstash{t: t, values: map[string]string{}, lists: map[string][]string{}}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	store, err := NewUpstashStore(UpstashConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}
	return f, store
}

func (f *fakeUpstash) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var cmd []any
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		f.t.Errorf("decode command: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	result := f.apply(cmd)
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func (f *fakeUpstash) apply(cmd []any) any {
	str := func(i int) string { return fmt.Sprint(cmd[i]) }
	switch str(0) {
	case "GET":
		v, ok := f.values[str(1)]
		if !ok {
			return nil
		}
		return v
	case "MGET":
		out := make([]any, 0, len(cmd)-1)
		for i := 1; i < len(cmd); i++ {
			if v, ok := f.values[str(i)]; ok {
				out = append(out, v)
			} else {
				out = append(out, nil)
			}
		}
		return out
	case "LRANGE":
		return f.lists[str(1)]
	case "EVAL":
		switch str(1) {
		case insertScript:
			key, index, id, payload := str(3), str(4), str(5), str(6)
			if _, exists := f.values[key]; exists {
				return 0
			}
			f.values[key] = payload
			f.lists[index] = append(f.lists[index], id)
			return 1
		case casScript:
			key, version, payload := str(3), str(4), str(5)
			cur, ok := f.values[key]
			if !ok {
				return -1
			}
			if f.casMisses > 0 {
				f.casMisses--
				return 0
			}
			var env upstashEnvelope
			_ = json.Unmarshal([]byte(cur), &env)
			if fmt.Sprint(env.Version) != version {
				return 0
			}
			f.values[key] = payload
			return 1
		}
	}
	f.t.Errorf("unexpected command %v", cmd)
	return nil
}

func TestUpstashStoreInsertAndList(t *testing.T) {
	t.Parallel()

	fake, store := newFakeUpstash(t)
	ctx := context.Background()
	col := store.Collection("animals")

	for _, id := range []string{"ALEX", "MARTY"} {
		if err := col.Insert(ctx, id, mustEncode(t, animalDoc{ID: id, Name: id})); err != nil {
			t.Fatalf("Insert(%s) error = %v", id, err)
		}
	}
	if err := col.Insert(ctx, "ALEX", mustEncode(t, animalDoc{ID: "ALEX"})); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Insert(duplicate) = %v, want ErrDuplicate", err)
	}

	docs, err := col.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "ALEX" || docs[1].ID != "MARTY" {
		t.Fatalf("List() = %+v", docs)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if _, ok := fake.values["zoo:animals:ALEX"]; !ok {
		t.Fatalf("document key not written: %v", fake.values)
	}
	if got := fake.lists["zoo:animals:ids"]; len(got) != 2 {
		t.Fatalf("index list = %v", got)
	}
}

func TestUpstashStoreFindByIDMissing(t *testing.T) {
	t.Parallel()

	_, store := newFakeUpstash(t)
	_, err := store.Collection("animals").FindByID(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpstashStoreListEmptySkipsMGET(t *testing.T) {
	t.Parallel()

	fake, store := newFakeUpstash(t)
	docs, err := store.Collection("animals").List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("List() = %+v, want empty", docs)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.commands) != 1 || fake.commands[0][0] != "LRANGE" {
		t.Fatalf("commands = %v", fake.commands)
	}
}

func TestUpstashStoreUpdateCompareAndSwap(t *testing.T) {
	t.Parallel()

	fake, store := newFakeUpstash(t)
	ctx := context.Background()
	col := store.Collection("animals")
	if err := col.Insert(ctx, "ALEX", mustEncode(t, animalDoc{ID: "ALEX"})); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	fake.mu.Lock()
	fake.casMisses = 1
	fake.mu.Unlock()

	if err := col.Update(ctx, "ALEX", appendHistory("limping")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	doc, err := col.FindByID(ctx, "ALEX")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	a, _ := Decode[animalDoc](doc)
	if doc.Version != 2 || len(a.History) != 1 || a.History[0] != "limping" {
		t.Fatalf("after update = %+v (%+v)", doc, a)
	}
}

func TestUpstashStoreUpdateConflict(t *testing.T) {
	t.Parallel()

	fake, store := newFakeUpstash(t)
	ctx := context.Background()
	col := store.Collection("animals")
	_ = col.Insert(ctx, "ALEX", mustEncode(t, animalDoc{ID: "ALEX"}))

	fake.mu.Lock()
	fake.casMisses = maxUpdateAttempts
	fake.mu.Unlock()

	if err := col.Update(ctx, "ALEX", appendHistory("x")); !errors.Is(err, ErrConflict) {
		t.Fatalf("Update() error = %v, want ErrConflict", err)
	}
}

func TestUpstashStoreFindByField(t *testing.T) {
	t.Parallel()

	_, store := newFakeUpstash(t)
	ctx := context.Background()
	col := store.Collection("staff_notification")
	_ = col.Insert(ctx, "n1", json.RawMessage(`{"destination_role":"JANITOR"}`))
	_ = col.Insert(ctx, "n2", json.RawMessage(`{"destination_role":"VETERINARIAN"}`))

	got, err := col.FindByField(ctx, "destination_role", "VETERINARIAN")
	if err != nil {
		t.Fatalf("FindByField() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "n2" {
		t.Fatalf("FindByField() = %+v", got)
	}
}

func TestUpstashStoreRedisError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGTYPE"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashStore(UpstashConfig{URL: server.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}
	if _, err := store.Collection("animals").List(context.Background()); err == nil {
		t.Fatal("expected redis error")
	}
}

func TestNewUpstashStoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashStore(UpstashConfig{Token: "t"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashStore(UpstashConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}
