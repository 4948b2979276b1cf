// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Knowledge base seeding command.
//
// Standalone CLI tool that upserts knowledge articles from a YAML file into
// the article corpus. Intended for seeding new deployments.
//
// Usage:
//
//	go run ./cmd/seedkb/ --file articles.yaml [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/bcem/supportdesk/internal/config"
	"github.com/bcem/supportdesk/internal/kbseed"
	"github.com/bcem/supportdesk/internal/store"
)

func main() {
	_ = godotenv.Load()

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	fileFlag := flag.String("file", "", "YAML file with knowledge articles (required)")
	dryRun := flag.Bool("dry-run", false, "Parse and validate the file without writing")
	flag.Parse()

	if *fileFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --file is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*fileFlag)
	if err != nil {
		slog.Error("failed to open seed file", "file", *fileFlag, "error", err)
		os.Exit(1)
	}
	articles, err := kbseed.Parse(f)
	f.Close()
	if err != nil {
		slog.Error("failed to parse seed file", "error", err)
		os.Exit(1)
	}
	slog.Info("seed file parsed", "file", *fileFlag, "articles", len(articles))

	if *dryRun {
		return
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Seed ---
	result, err := kbseed.Seed(ctx, st, articles)
	if err != nil {
		slog.Error("seeding aborted", "error", err)
		os.Exit(1)
	}

	slog.Info("seeding complete",
		"upserted", result.Upserted,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
	if result.Errors > 0 {
		os.Exit(1)
	}
}
