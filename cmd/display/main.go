package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/apiclient"
	"github.com/cardio-live/cardiolive/internal/config"
	"github.com/cardio-live/cardiolive/internal/directory"
	"github.com/cardio-live/cardiolive/internal/display/app"
	"github.com/cardio-live/cardiolive/internal/display/client"
	"github.com/cardio-live/cardiolive/internal/display/replica"
)

func main() {
	serverURL := flag.String("server", "http://127.0.0.1:8080", "Base URL of the cardiolive server")
	token := flag.String("token", "", "Auth token (if the server requires it)")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	envPath := flag.String("env", ".env", "Path to dotenv file")
	logPath := flag.String("log", "", "Write logs to this file instead of discarding them")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fail(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *token == "" {
		*token = cfg.Server.AuthToken
	}

	if *logPath != "" {
		f, err := tea.LogToFile(*logPath, "display")
		if err != nil {
			fail(err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	dir, err := directory.Open(directory.Options{
		File:          cfg.Directory.File,
		URL:           cfg.Directory.URL,
		Token:         cfg.Directory.Token,
		LookupTimeout: cfg.Directory.LookupTimeout,
		RetryAfter:    cfg.Directory.RetryAfter,
	})
	if err != nil {
		fail(err)
	}

	api := apiclient.New(*serverURL, *token)
	feedClient := client.NewFeedClient(api.FeedURL(), *token)
	r := replica.New(dir, aggregate.Options{
		DefaultAge: cfg.Monitor.DefaultAge,
		AlertHigh:  cfg.Monitor.AlertHigh,
		AlertLow:   cfg.Monitor.AlertLow,
	}, cfg.Monitor.TickInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	m := app.New(api, feedClient, r)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
