package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/smart-zoo-assistant/pkg/events"
)

var watchTopic string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print zoo domain events from NATS as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadAppConfig()
		if err != nil {
			return err
		}
		if app.NATSURL == "" {
			return errors.New("ZOO_NATS_URL is not set")
		}

		sub, err := events.NewSubscriber(app.NATSURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		return sub.Watch(ctx, watchTopic, func(m events.Message) {
			fmt.Fprintf(out, "%s %s\n", m.Topic, m.Data)
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchTopic, "topic", events.TopicAll, "NATS subject to watch, wildcards allowed")
}
