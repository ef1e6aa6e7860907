package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"fairstay-backend/handler"
	"fairstay-backend/internal/app"
	"fairstay-backend/internal/config"
	"fairstay-backend/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, cfgErr := config.Load()
	if cfg != nil {
		logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	log := logging.Logger()

	// A configuration problem is answered per request rather than crashing the
	// cold start, so callers get a JSON body instead of a platform error.
	if cfgErr != nil {
		log.Error().Err(cfgErr).Msg("configuration invalid")
		startLambda(handler.LambdaConfig{ConfigErr: cfgErr})
		return
	}

	// ---- Clients and services ----
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build application")
		startLambda(handler.LambdaConfig{ConfigErr: err})
		return
	}

	startLambda(handler.LambdaConfig{
		Router:    a.Handler,
		DB:        a.Records,
		BasePaths: cfg.BasePaths,
	})
}

func startLambda(lc handler.LambdaConfig) {
	l, err := handler.NewLambda(lc)
	if err != nil {
		log := logging.Logger()
		log.Error().Err(err).Msg("failed to create lambda handler")
		os.Exit(1)
	}
	lambda.Start(l.Handle)
}
