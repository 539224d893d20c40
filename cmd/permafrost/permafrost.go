package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ice-blockchain/permafrost/cfg"
	"github.com/ice-blockchain/permafrost/client"
	"github.com/ice-blockchain/permafrost/relay"
)

var (
	configPath string
	relays     []string
	dbPath     string
	permafrost = &cobra.Command{
		Use:   "permafrost",
		Short: "permafrost",
		Run: func(cmd *cobra.Command, args []string) {
			cfg.MustInit(configPath)
			conf := cfg.MustGet[client.Config]()
			if len(relays) > 0 {
				conf.Relays = relays
			}
			if dbPath != "" {
				conf.DatabasePath = dbPath
			}
			if conf.DebounceInterval <= 0 {
				conf.DebounceInterval = 100 * time.Millisecond
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			instance := client.New(conf, func() []relay.Signer { return nil })
			if err := instance.Connect(ctx); err != nil {
				log.Panic(err)
			}
			defer func() {
				if err := instance.Close(); err != nil {
					log.Printf("ERROR:%v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
		},
	}
	initFlags = func() {
		permafrost.Flags().StringVar(&configPath, "config", "", "path to the yaml configuration file")
		permafrost.Flags().StringSliceVar(&relays, "relay", nil, "relay url to connect to (repeatable, overrides config)")
		permafrost.Flags().StringVar(&dbPath, "db", "", "path to the sqlite history database (overrides config)")
	}
)

func init() {
	initFlags()
}

func main() {
	if err := permafrost.Execute(); err != nil {
		log.Panic(err)
	}
}
