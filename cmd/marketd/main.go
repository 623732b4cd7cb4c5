package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nftmarket/marketd/internal/config"
	restservice "github.com/nftmarket/marketd/internal/interface/rest"
	"github.com/nftmarket/marketd/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version will be set during build time
var Version string

func main() {
	app := cli.NewApp()
	app.Name = "marketd"
	app.Version = Version
	app.Usage = "NFT marketplace listing and settlement daemon"
	app.Flags = config.Flags
	app.Action = mainAction
	app.Commands = []*cli.Command{
		listingsCmd,
		listingCmd,
		feesCmd,
		statsCmd,
		eventsCmd,
		setFeeRateCmd,
		withdrawCmd,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainAction(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	if cfg.OtelCollectorEndpoint != "" {
		log.AddHook(telemetry.NewOTelHook())
	}

	svcConfig := restservice.Config{
		Port: cfg.Port,
	}

	svc, err := restservice.NewService(Version, svcConfig, cfg)
	if err != nil {
		return err
	}

	log.Infof("marketd config: %s", cfg)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(
		sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, os.Interrupt,
	)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)

	return nil
}
