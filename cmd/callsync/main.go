package main

import (
	"context"

	"github.com/nestline/callsync/internal/callsync"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/logging"
	"github.com/nestline/callsync/internal/media"
	"github.com/nestline/callsync/internal/prometheus"
	"go.uber.org/zap"
)

func main() {
	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		client, err := callsync.NewClient(cancel, config.Conf.UserID, media.Headless())
		if err != nil {
			logging.Logger.Fatal("failed to create callsync client", zap.String("error", err.Error()))
		}

		err = client.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		client.HealthCheckerService.Check()

		cancel()
	}
}
