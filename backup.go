package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/smart-zoo-assistant/pkg/config"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/docstore/snapshot"
)

var (
	backupOut      string
	backupSchedule bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export the store as a JSONL snapshot to a file and/or S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadAppConfig()
		if err != nil {
			return err
		}
		snapCfg, err := configx.New[snapshot.Config]("SNAPSHOT")
		if err != nil {
			return fmt.Errorf("load SNAPSHOT_* config: %w", err)
		}

		var dests []snapshot.Destination
		if backupOut != "" {
			dests = append(dests, snapshot.FileDestination{Path: backupOut})
		}
		if snapCfg.S3Bucket != "" {
			s3dest, err := snapshot.NewS3Destination(cmd.Context(), *snapCfg)
			if err != nil {
				return err
			}
			dests = append(dests, s3dest)
		}
		if len(dests) == 0 {
			return errors.New("no destination: pass --out or set SNAPSHOT_S3_BUCKET")
		}

		store, err := openStore(app)
		if err != nil {
			return err
		}
		defer store.Close()

		if !backupSchedule {
			n, err := snapshot.Once(cmd.Context(), store, snapshotCollections, dests...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot of %d bytes written to %d destination(s)\n", n, len(dests))
			return nil
		}

		if snapCfg.Interval <= 0 {
			return errors.New("--schedule needs SNAPSHOT_INTERVAL > 0")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scheduler := snapshot.NewScheduler(store, snapshotCollections, dests, snapCfg.Interval)
		scheduler.Start()
		<-ctx.Done()
		scheduler.Stop()
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupOut, "out", "", "write the snapshot to this local file")
	backupCmd.Flags().BoolVar(&backupSchedule, "schedule", false, "keep running and snapshot every SNAPSHOT_INTERVAL")
}
