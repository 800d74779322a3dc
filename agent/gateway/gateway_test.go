package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tanpawarit/smart-zoo-assistant/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
	"github.com/tanpawarit/smart-zoo-assistant/api/server/servertest"
)

type fakePrompts struct {
	reply string
	err   error
	reqs  chan orchestrator.Request
}

func (f *fakePrompts) HandlePrompt(_ context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	f.reqs <- req
	if f.err != nil {
		return orchestrator.Result{}, f.err
	}
	return orchestrator.Result{Reply: f.reply}, nil
}

func newGateway(t *testing.T, prompts *fakePrompts) (*httptest.Server, *servertest.Backend) {
	t.Helper()
	backend := servertest.New(t, nil)
	client, err := tool.NewClient(backend.URL(), time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	srv := httptest.NewServer(NewRouter(Options{
		Verifier:      backend.Verifier,
		Prompts:       prompts,
		Notifications: client,
	}))
	t.Cleanup(srv.Close)
	return srv, backend
}

func post(t *testing.T, srv *httptest.Server, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPromptReturnsReply(t *testing.T) {
	t.Parallel()

	prompts := &fakePrompts{reply: "Vets notified.", reqs: make(chan orchestrator.Request, 1)}
	srv, _ := newGateway(t, prompts)

	resp := post(t, srv, "/prompt", servertest.TokenZookeeper, `{"prompt":"Alex seems to be limping"}`)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["response"] != "Vets notified." {
		t.Fatalf("response = %+v", out)
	}

	got := <-prompts.reqs
	want := orchestrator.Request{
		Query:  "Alex seems to be limping",
		Role:   catalog.RoleZookeeper,
		UserID: "U1",
		Token:  servertest.TokenZookeeper,
	}
	if got != want {
		t.Fatalf("request = %+v, want %+v", got, want)
	}
}

func TestPromptStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		token  string
		body   string
		err    error
		status int
	}{
		{"no token", "", `{"prompt":"hi"}`, nil, http.StatusUnauthorized},
		{"bad token", "bogus", `{"prompt":"hi"}`, nil, http.StatusUnauthorized},
		{"empty prompt", servertest.TokenZookeeper, `{"prompt":"  "}`, nil, http.StatusBadRequest},
		{"invalid json", servertest.TokenZookeeper, `{`, nil, http.StatusBadRequest},
		{"no role", servertest.TokenNoRole, `{"prompt":"hi"}`, nil, http.StatusForbidden},
		{"ambiguous role", servertest.TokenMultiRole, `{"prompt":"hi"}`, nil, http.StatusForbidden},
		{"model failure", servertest.TokenZookeeper, `{"prompt":"hi"}`, fmt.Errorf("%w: timeout", contractx.ErrModelInvoke), http.StatusBadGateway},
		{"validation failure", servertest.TokenZookeeper, `{"prompt":"hi"}`, fmt.Errorf("%w: bad", contractx.ErrValidation), http.StatusBadRequest},
		{"unexpected failure", servertest.TokenZookeeper, `{"prompt":"hi"}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prompts := &fakePrompts{err: tt.err, reqs: make(chan orchestrator.Request, 1)}
			srv, _ := newGateway(t, prompts)
			resp := post(t, srv, "/prompt", tt.token, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusForbidden && len(prompts.reqs) != 0 {
				t.Fatal("orchestration ran for a caller without a resolvable role")
			}
		})
	}
}

func TestStaffNotificationsProxy(t *testing.T) {
	t.Parallel()

	srv, backend := newGateway(t, &fakePrompts{reqs: make(chan orchestrator.Request, 1)})
	ctx := context.Background()
	if _, err := backend.Notifications.Record(ctx, catalog.StaffNotification{
		Description:     "Alex is limping",
		DestinationRole: catalog.RoleVeterinarian,
		NotifierRole:    catalog.RoleZookeeper,
		NotifierID:      "U1",
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	resp := get(t, srv, "/staff_notifications", servertest.TokenVeterinarian)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var notes []catalog.StaffNotification
	if err := json.NewDecoder(resp.Body).Decode(&notes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(notes) != 1 || notes[0].Description != "Alex is limping" {
		t.Fatalf("notifications = %+v", notes)
	}

	resp = get(t, srv, "/staff_notifications", servertest.TokenJanitor)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("janitor status = %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&notes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("janitor notifications = %+v", notes)
	}

	if resp := get(t, srv, "/staff_notifications", servertest.TokenMultiRole); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("ambiguous role status = %d, want 403", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _ := newGateway(t, &fakePrompts{reqs: make(chan orchestrator.Request, 1)})
	resp := get(t, srv, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
