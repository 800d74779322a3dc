package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/smart-zoo-assistant/agent/agents/assistant"
	"github.com/tanpawarit/smart-zoo-assistant/agent/agents/orchestrator"
	"github.com/tanpawarit/smart-zoo-assistant/agent/gateway"
	llmx "github.com/tanpawarit/smart-zoo-assistant/agent/llm"
	"github.com/tanpawarit/smart-zoo-assistant/agent/policy"
	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/auth"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
	"github.com/tanpawarit/smart-zoo-assistant/api/server"
	configx "github.com/tanpawarit/smart-zoo-assistant/pkg/config"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/docstore/snapshot"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/events"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/qstash"
)

var serveCmd = &cobra.Command{
	Use:       "serve [api|agent|all]",
	Short:     "Run the backend API, the assistant gateway, or both",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"api", "agent", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		surface := "all"
		if len(args) == 1 {
			surface = args[0]
		}

		app, err := loadAppConfig()
		if err != nil {
			return err
		}
		verifier, err := loadVerifier()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var servers []*http.Server
		if surface == "api" || surface == "all" {
			srv, cleanup, err := buildAPI(ctx, app, verifier)
			if err != nil {
				return err
			}
			defer cleanup()
			servers = append(servers, srv)
		}
		if surface == "agent" || surface == "all" {
			srv, err := buildAgent(ctx, app, verifier)
			if err != nil {
				return err
			}
			servers = append(servers, srv)
		}

		return runServers(ctx, app, servers)
	},
}

func loadVerifier() (auth.Verifier, error) {
	cfg, err := configx.New[auth.Config]("AUTH")
	if err != nil {
		return nil, fmt.Errorf("load AUTH_* config: %w", err)
	}
	return cfg.NewVerifier()
}

// newPublisher fans events out to NATS and, when QSTASH_* is configured, to a
// webhook destination.
func newPublisher(app *AppConfig) (events.Publisher, error) {
	natsPub, err := events.NewPublisher(app.NATSURL)
	if err != nil {
		return nil, err
	}

	qcfg, err := configx.New[qstash.Config]("QSTASH")
	if err != nil {
		_ = natsPub.Close()
		return nil, fmt.Errorf("load QSTASH_* config: %w", err)
	}
	if !qcfg.Enabled() {
		return natsPub, nil
	}
	client, err := qstash.NewClient(*qcfg)
	if err != nil {
		_ = natsPub.Close()
		return nil, fmt.Errorf("qstash client: %w", err)
	}
	log.Info().Str("destination", qcfg.Destination).Msg("forwarding events through qstash")
	return events.Fanout(natsPub, events.NewQStashPublisher(client, qcfg.Destination)), nil
}

func buildAPI(ctx context.Context, app *AppConfig, verifier auth.Verifier) (*http.Server, func(), error) {
	store, err := openStore(app)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := newPublisher(app)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	animals := catalog.NewAnimalCatalog(store, publisher)
	if app.Seed {
		n, err := animals.Seed(ctx, catalog.DefaultAnimals())
		if err != nil {
			_ = publisher.Close()
			_ = store.Close()
			return nil, nil, fmt.Errorf("seed animals: %w", err)
		}
		if n > 0 {
			log.Info().Int("animals", n).Msg("seeded animal catalog")
		}
	}

	var scheduler *snapshot.Scheduler
	snapCfg, err := configx.New[snapshot.Config]("SNAPSHOT")
	if err != nil {
		log.Warn().Err(err).Msg("snapshot config unreadable, periodic snapshots disabled")
	} else if snapCfg.Interval > 0 && snapCfg.S3Bucket != "" {
		dest, err := snapshot.NewS3Destination(ctx, *snapCfg)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot destination unavailable, periodic snapshots disabled")
		} else {
			scheduler = snapshot.NewScheduler(store, snapshotCollections, []snapshot.Destination{dest}, snapCfg.Interval)
			scheduler.Start()
		}
	}

	handler := server.NewRouter(server.Options{
		Verifier:      verifier,
		Animals:       animals,
		Notifications: catalog.NewNotificationCatalog(store, publisher),
	})

	cleanup := func() {
		if scheduler != nil {
			scheduler.Stop()
		}
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("close publisher")
		}
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}

	log.Info().Str("addr", app.APIAddr).Str("store", app.StoreBackend).Msg("backend api configured")
	return &http.Server{Addr: app.APIAddr, Handler: handler}, cleanup, nil
}

func buildAgent(ctx context.Context, app *AppConfig, verifier auth.Verifier) (*http.Server, error) {
	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, fmt.Errorf("load LLM_* config: %w", err)
	}
	reasoner, err := assistant.NewFromConfig(ctx, *llmCfg)
	if err != nil {
		return nil, err
	}

	client, err := tool.NewClient(app.APIBaseURL, app.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	matrix, err := policy.LoadMatrix(app.PolicyFile)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(reasoner, client, orchestrator.Config{
		MaxTurns: llmCfg.Turns(),
		Matrix:   matrix,
		Deduper:  policy.NewDeduper(app.DedupWindow, app.DedupThreshold),
	})
	if err != nil {
		return nil, err
	}

	handler := gateway.NewRouter(gateway.Options{
		Verifier:      verifier,
		Prompts:       orch,
		Notifications: client,
	})

	log.Info().
		Str("addr", app.AgentAddr).
		Str("backend", app.APIBaseURL).
		Str("model", llmCfg.Model).
		Int("max_turns", llmCfg.Turns()).
		Msg("assistant gateway configured")
	return &http.Server{Addr: app.AgentAddr, Handler: handler}, nil
}

// runServers serves until ctx is done or one server fails, then shuts all of
// them down.
func runServers(ctx context.Context, app *AppConfig, servers []*http.Server) error {
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("addr", srv.Addr).Msg("shutdown")
		}
	}
	return runErr
}
