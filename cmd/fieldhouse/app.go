package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/fieldhouse/fieldhouse-go/api"
	"github.com/fieldhouse/fieldhouse-go/auth"
	"github.com/fieldhouse/fieldhouse-go/internal/config"
	"github.com/fieldhouse/fieldhouse-go/session/filestore"
	"github.com/fieldhouse/fieldhouse-go/token"
	"github.com/fieldhouse/fieldhouse-go/transport"
)

func run(ctx context.Context, args []string) error {
	var verbose bool
	app := &cli.Command{
		Name:  "fieldhouse",
		Usage: "Command-line client for the Fieldhouse community-sports platform",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "Enable debug logging",
				Destination: &verbose,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdLogin(),
			cmdGoogleLogin(),
			cmdWhoami(),
			cmdProfile(),
			cmdLogout(),
			cmdWatch(),
			cmdVenues(),
			cmdClubs(),
		},
	}
	return app.Run(ctx, args)
}

// app bundles the wired SDK for a single command invocation.
type app struct {
	cfg       config.Config
	store     *filestore.Store
	tokens    *token.Holder
	intercept *transport.Interceptor
	api       *api.Client
	auth      *auth.Service
	logger    zerolog.Logger
}

// newApp wires the full client stack: config, file store, token holder,
// intercepting transport, REST bindings and the session service.
func newApp() (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	store, err := filestore.New(cfg.GetDataFolder())
	if err != nil {
		return nil, err
	}

	tokens := token.NewHolder()
	refresher := token.NewRefresher(cfg.GetAPIBaseURL(), nil)
	intercept := transport.New(transport.Options{
		Source:    tokens,
		Refresher: refresher,
		Logger:    logger,
	})
	apiClient := api.New(cfg.GetAPIBaseURL(), intercept.Client(), logger)

	svc, err := auth.NewService(auth.Deps{
		API:       apiClient,
		Store:     store,
		Tokens:    tokens,
		Transport: intercept,
		Navigator: consoleNavigator{},
	}, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		store:     store,
		tokens:    tokens,
		intercept: intercept,
		api:       apiClient,
		auth:      svc,
		logger:    logger,
	}, nil
}

// consoleNavigator is the terminal stand-in for a browser redirect to the
// login route.
type consoleNavigator struct{}

func (consoleNavigator) ToLogin(reason auth.LoginReason) {
	switch reason {
	case auth.ReasonDeleted:
		fmt.Println("Your account no longer exists. All local data has been removed.")
	case auth.ReasonSessionExpired:
		fmt.Println("Your session has expired. Run 'fieldhouse login' to sign in again.")
	default:
		fmt.Println("Signed out. Run 'fieldhouse login' to sign in again.")
	}
}
