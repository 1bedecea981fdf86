package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jay/dadmail-client/internal/buildinfo"
	"github.com/jay/dadmail-client/internal/client/cli"
	"github.com/jay/dadmail-client/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	app.Run(ctx)

}
