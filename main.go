package main

import (
	"os"

	_ "github.com/tanpawarit/smart-zoo-assistant/pkg/logger/autoload"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
