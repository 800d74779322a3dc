// Package servertest starts an in-process zoo backend for tests.
package servertest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tanpawarit/smart-zoo-assistant/api/auth"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
	"github.com/tanpawarit/smart-zoo-assistant/api/server"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/docstore"
)

// Tokens accepted by the backend started with New.
const (
	TokenZookeeper    = "zk"
	TokenZookeeper2   = "zk2"
	TokenVeterinarian = "vet"
	TokenJanitor      = "janitor"
	TokenCoordinator  = "coord"
	TokenMultiRole    = "multi"
	TokenNoRole       = "none"
)

// Backend is a running test backend with direct access to its catalogs.
type Backend struct {
	Server        *httptest.Server
	Verifier      *auth.StaticVerifier
	Animals       *catalog.AnimalCatalog
	Notifications *catalog.NotificationCatalog
}

func (b *Backend) URL() string { return b.Server.URL }

// Claims returns the identity behind the named test token.
func Claims() map[string]auth.Claims {
	return map[string]auth.Claims{
		TokenZookeeper:    {Subject: "U1", Roles: []string{"ZOOKEEPER"}},
		TokenZookeeper2:   {Subject: "U2", Roles: []string{"ZOOKEEPER"}},
		TokenVeterinarian: {Subject: "V1", Roles: []string{"VETERINARIAN"}},
		TokenJanitor:      {Subject: "J1", Roles: []string{"JANITOR"}},
		TokenCoordinator:  {Subject: "C1", Roles: []string{"COORDINATOR"}},
		TokenMultiRole:    {Subject: "M1", Roles: []string{"JANITOR", "ZOOKEEPER"}},
		TokenNoRole:       {Subject: "N1"},
	}
}

// New starts a backend over a seeded in-memory store. now may be nil.
func New(t testing.TB, now func() time.Time) *Backend {
	t.Helper()

	store, err := docstore.NewMemoryStore("")
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	animals := catalog.NewAnimalCatalog(store, nil)
	if _, err := animals.Seed(context.Background(), catalog.DefaultAnimals()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	notifications := catalog.NewNotificationCatalog(store, nil)
	verifier := auth.NewStaticVerifier(Claims())

	srv := httptest.NewServer(server.NewRouter(server.Options{
		Verifier:      verifier,
		Animals:       animals,
		Notifications: notifications,
		Now:           now,
	}))
	t.Cleanup(srv.Close)

	return &Backend{
		Server:        srv,
		Verifier:      verifier,
		Animals:       animals,
		Notifications: notifications,
	}
}
