package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
	configx "github.com/tanpawarit/smart-zoo-assistant/pkg/config"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/docstore"
	logx "github.com/tanpawarit/smart-zoo-assistant/pkg/logger"
)

// AppConfig holds the process-wide settings read from ZOO_* variables.
type AppConfig struct {
	APIAddr         string        `envconfig:"API_ADDR" default:":8000"`
	AgentAddr       string        `envconfig:"AGENT_ADDR" default:":8080"`
	APIBaseURL      string        `envconfig:"API_BASE_URL" default:"http://localhost:8000"`
	StoreBackend    string        `envconfig:"STORE_BACKEND" default:"memory"`
	DataDir         string        `envconfig:"DATA_DIR" default:"./data"`
	NATSURL         string        `envconfig:"NATS_URL"`
	Seed            bool          `envconfig:"SEED" default:"true"`
	PolicyFile      string        `envconfig:"POLICY_FILE"`
	DedupWindow     time.Duration `envconfig:"DEDUP_WINDOW" default:"24h"`
	DedupThreshold  float64       `envconfig:"DEDUP_THRESHOLD" default:"0.5"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

var (
	envFile string

	snapshotCollections = []string{catalog.AnimalsCollection, catalog.NotificationsCollection}
)

var rootCmd = &cobra.Command{
	Use:          "smart-zoo <command>",
	Short:        "Smart zoo backend and staff assistant",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(envFile) == "" {
			return nil
		}
		configx.SetEnvFile(envFile)
		logCfg, err := configx.New[logx.Config]("LOG")
		if err != nil {
			return fmt.Errorf("load log config: %w", err)
		}
		logx.Init(*logCfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file to load before reading configuration")

	rootCmd.AddCommand(serveCmd, seedCmd, backupCmd, chatCmd, watchCmd)
}

func loadAppConfig() (*AppConfig, error) {
	cfg, err := configx.New[AppConfig]("ZOO")
	if err != nil {
		return nil, fmt.Errorf("load ZOO_* config: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured record store. Backend specific settings are
// only read for the selected backend.
func openStore(app *AppConfig) (docstore.Store, error) {
	var (
		pg  *docstore.PostgresConfig
		up  *docstore.UpstashConfig
		err error
	)
	switch strings.ToLower(strings.TrimSpace(app.StoreBackend)) {
	case docstore.BackendPostgres:
		if pg, err = configx.New[docstore.PostgresConfig]("POSTGRES"); err != nil {
			return nil, fmt.Errorf("load POSTGRES_* config: %w", err)
		}
	case docstore.BackendUpstash:
		if up, err = configx.New[docstore.UpstashConfig]("UPSTASH_REDIS"); err != nil {
			return nil, fmt.Errorf("load UPSTASH_REDIS_* config: %w", err)
		}
	}
	return docstore.Open(app.StoreBackend, app.DataDir, pg, up)
}
