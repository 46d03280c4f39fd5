package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hideapp/hide/hideservice"
	"github.com/hideapp/hide/internal/config"
	"github.com/hideapp/hide/internal/logger"
)

func main() {
	var (
		port        int
		storeDriver string
	)
	root := &cobra.Command{
		Use:          "hide-service",
		Short:        "Notification pipeline: debounced cards, live stream and operator commands",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := logger.New("hide-service")
			cfg, err := config.New()
			if err != nil {
				return err
			}
			// Optional flag overrides of the environment
			if cmd.Flags().Changed("port") {
				cfg.HTTPPort = port
			}
			if cmd.Flags().Changed("store-driver") {
				cfg.StoreDriver = storeDriver
				if err := cfg.ResolveDefaults(); err != nil {
					return err
				}
			}
			return hideservice.RunWithConfig(cfg, l)
		},
	}
	root.Flags().IntVarP(&port, "port", "p", 8000, "Override HIDE_HTTP_PORT")
	root.Flags().StringVar(&storeDriver, "store-driver", "", "Override HIDE_STORE_DRIVER (memory, sqlite, postgres)")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("hide-service exited with error")
		os.Exit(1)
	}
}
