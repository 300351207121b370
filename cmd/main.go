// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/0x0BSoD/feedSync/internal/client"
	"github.com/0x0BSoD/feedSync/internal/config"
	"github.com/0x0BSoD/feedSync/internal/engine"
	"github.com/0x0BSoD/feedSync/internal/feed"
	"github.com/0x0BSoD/feedSync/internal/pruner"
	"github.com/0x0BSoD/feedSync/internal/queue"
	"github.com/0x0BSoD/feedSync/internal/reporter"
	"github.com/0x0BSoD/feedSync/internal/store"
	"github.com/0x0BSoD/feedSync/internal/userstate"
)

func main() {
	cfg := config.Get()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Printf("[ERROR] failed to open local store: %v", err)
		return
	}
	defer db.Close()

	api := client.New(
		cfg.ServerBaseURL,
		cfg.RequestTimeout,
		cfg.MaxRetries,
		cfg.InitialBackoff,
		nil,
	)

	var (
		opQueue     = queue.New(db, queue.ClientReplayer(api), nil)
		feedSyncer  = feed.New(db, api, cfg.GraceWindow, cfg.BatchSize)
		stateEngine = userstate.New(db, api, opQueue, nil)
		markers     = pruner.New(db, cfg.GraceWindow)
		advisor     = reporter.New()
		syncEngine  = engine.New(
			feedSyncer,
			stateEngine,
			opQueue,
			markers,
			db,
			advisor,
			cfg.SyncInterval,
			cfg.IdleThreshold,
			nil,
		)
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func(ctx context.Context) {
		if err := http.ListenAndServe("127.0.0.1:8089", mux); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("[ERROR] failed to run http server: %v", err)
				return
			}

			log.Printf("[INFO] http server stopped")
		}
	}(ctx)

	if err := syncEngine.Start(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[ERROR] failed to run sync engine: %v", err)
			return
		}

		log.Printf("[INFO] sync engine stopped")
	}
}
