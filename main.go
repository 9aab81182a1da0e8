// quill - a terminal assistant for the workbench.
//
// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/arlenmoor/quill/internal/api"
	"github.com/arlenmoor/quill/internal/cli"
	"github.com/arlenmoor/quill/internal/config"
	"github.com/arlenmoor/quill/internal/dispatch"
	"github.com/arlenmoor/quill/internal/engine"
	"github.com/arlenmoor/quill/internal/storage"
	"github.com/arlenmoor/quill/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("quill %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Session persistence is optional; a broken database degrades to an
	// in-memory run rather than blocking the REPL.
	st := store.New()
	var persist engine.Persister
	if cfg.Storage.Enabled {
		path, err := cfg.StoragePath()
		if err != nil {
			return err
		}
		db, err := storage.Open(path)
		if err != nil {
			log.Printf("MAIN: session storage unavailable: %v", err)
		} else {
			defer db.Close()
			sessions, err := db.LoadAll()
			if err != nil {
				log.Printf("MAIN: failed to load saved sessions: %v", err)
			}
			for _, sess := range sessions {
				st.Restore(sess)
			}
			persist = db
		}
	}

	client := api.NewClient(cfg.Server.URL, clientOptions(cfg)...)
	disp := dispatch.New(client)

	interval := time.Duration(cfg.Chat.ThrottleMs) * time.Millisecond
	eng := engine.New(st, disp, interval, persist)

	// Live config reload: turn-level settings pick up on the next turn.
	// Watch serializes deliveries, so the read-copy-publish below never
	// races with itself; readers snapshot through the Live holder.
	live := config.NewLive(cfg)
	if path, err := config.ConfigPath(); err == nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			err := config.Watch(ctx, path, func(next *config.Config) {
				merged := *live.Get()
				merged.Chat = next.Chat
				merged.Knowledge = next.Knowledge
				merged.UI = next.UI
				live.Set(&merged)
				log.Printf("MAIN: configuration reloaded")
			})
			if err != nil && err != context.Canceled {
				log.Printf("MAIN: config watch stopped: %v", err)
			}
		}()
	}

	return cli.Run(live, eng)
}

// clientOptions derives the credential setup from config.
func clientOptions(cfg *config.Config) []api.Option {
	if cfg.Server.TokenPath != "" {
		return []api.Option{api.WithTokenSource(api.FileToken(cfg.Server.TokenPath))}
	}
	if cfg.Server.Token != "" {
		return []api.Option{api.WithToken(cfg.Server.Token)}
	}
	return nil
}

func printUsage() {
	fmt.Println("quill - terminal assistant for the workbench")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  quill            Start the interactive session")
	fmt.Println("  quill version    Show version information")
	fmt.Println()
	fmt.Println("Configuration lives at ~/.quill/config.toml.")
}
