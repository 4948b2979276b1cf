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

// Support desk service.
//
// Entry point for the support case pipeline. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Starts the classification worker pool and requeues pending cases
//  4. Schedules mailbox polling and the completed-case reaper
//  5. Serves the HTTP API (health, metrics, sync, cases, analytics, replies)
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/supportdesk/internal/agent"
	"github.com/bcem/supportdesk/internal/api"
	"github.com/bcem/supportdesk/internal/config"
	"github.com/bcem/supportdesk/internal/dedup"
	"github.com/bcem/supportdesk/internal/extract"
	"github.com/bcem/supportdesk/internal/ingest"
	"github.com/bcem/supportdesk/internal/llm"
	"github.com/bcem/supportdesk/internal/mailbox"
	"github.com/bcem/supportdesk/internal/notify"
	"github.com/bcem/supportdesk/internal/reaper"
	"github.com/bcem/supportdesk/internal/reply"
	"github.com/bcem/supportdesk/internal/retrieval"
	"github.com/bcem/supportdesk/internal/scheduler"
	"github.com/bcem/supportdesk/internal/storage"
	"github.com/bcem/supportdesk/internal/store"
	"github.com/bcem/supportdesk/internal/tasks"
)

const (
	historyCorpusLimit = 500
	requeueLimit       = 1000
	jobTimeout         = 5 * time.Minute
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting support desk service",
		"mailbox_enabled", cfg.Mailbox.Enabled(),
		"poll_schedule", cfg.Mailbox.PollSchedule,
		"retention", cfg.Retention,
		"workers", cfg.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	cases, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise case store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	// --- Dedup Filter ---
	// Redis is only the fast path; the store's unique external id still
	// rejects duplicates while Redis is down.
	filter := dedup.NewFilter(rdb, cfg.DedupTTL)
	if err := filter.Ping(ctx); err != nil {
		slog.Warn("Redis unavailable, dedup falls back to the database", "error", err)
	} else {
		slog.Info("connected to Redis")
	}

	// --- Attachment Storage and Extraction ---
	disk, err := storage.NewDisk(cfg.StorageDir)
	if err != nil {
		slog.Error("failed to initialise attachment storage", "dir", cfg.StorageDir, "error", err)
		os.Exit(1)
	}

	extractor := extract.New(nil)
	if ocr := extract.NewTesseract(cfg.OCRLanguages); ocr != nil {
		extractor.OCR = ocr
		slog.Info("OCR enabled", "languages", ocr.Languages)
	} else {
		slog.Warn("tesseract not found, scanned attachments will not be recognised")
	}

	// --- Classification Agent ---
	var model agent.Model
	client, err := llm.New(llm.Config{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		Model:     cfg.OpenAI.Model,
		Timeout:   cfg.OpenAI.Timeout,
		MaxTokens: cfg.OpenAI.MaxTokens,
	})
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		slog.Warn("OPENAI_API_KEY not set, cases are classified by the local fallback")
	case err != nil:
		slog.Error("failed to create LLM client", "error", err)
		os.Exit(1)
	default:
		model = client
	}

	var channel notify.Channel
	if tg := notify.NewTelegram(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Timeout); tg != nil {
		channel = tg
	} else {
		slog.Warn("Telegram not configured, escalation alerts are disabled")
	}
	notifier := notify.New(channel, cases)

	classifier := agent.New(
		model,
		retrieval.NewKnowledgeBase(cases),
		retrieval.NewCaseHistory(cases, historyCorpusLimit),
		cases,
		notifier,
	)

	dispatcher, err := tasks.Start(ctx, cfg.Workers, classifier.Apply)
	if err != nil {
		slog.Error("failed to start classification workers", "error", err)
		os.Exit(1)
	}

	// --- Ingestion Gateway ---
	var source ingest.Source
	if cfg.Mailbox.Enabled() {
		fetcher, err := mailbox.NewFetcher(ctx, cfg.Mailbox, cfg.MaxAttachmentBytes)
		if err != nil {
			slog.Error("failed to configure mailbox", "error", err)
			os.Exit(1)
		}
		source = fetcher
	} else {
		slog.Warn("mailbox not configured, polling is disabled")
	}

	gateway := ingest.New(ingest.Deps{
		Source:    source,
		Store:     cases,
		Dedup:     filter,
		Files:     disk,
		Extractor: extractor,
		Queue:     dispatcher,
		Filter:    ingest.NewFilter(cfg.BlockedSenders, cfg.BlockedSubjects),
	}, ingest.Limits{
		MaxAttachments:     cfg.MaxAttachments,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
		TextBudget:         extract.DefaultBudget,
	})

	// Cases left pending by a previous run are picked up again.
	if n, err := gateway.RequeuePending(ctx, 0, requeueLimit); err != nil {
		slog.Error("failed to requeue pending cases", "error", err)
	} else if n > 0 {
		slog.Info("requeued pending cases", "count", n)
	}

	// --- Reply Dispatch ---
	replies := reply.NewService(cases, reply.NewSMTPSender(reply.SMTPConfig{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		User:        cfg.SMTP.User,
		Password:    cfg.SMTP.Password,
		From:        cfg.SMTP.From,
		DialTimeout: cfg.SMTP.DialTimeout,
	}))

	// --- Scheduled Jobs ---
	sched := scheduler.New(ctx, jobTimeout)
	if source != nil {
		err := sched.Add("mailbox-poll", cfg.Mailbox.PollSchedule, func(ctx context.Context) error {
			_, err := gateway.PollAndIngest(ctx)
			if errors.Is(err, ingest.ErrPollInProgress) {
				slog.Debug("mailbox poll already running, skipping tick")
				return nil
			}
			return err
		})
		if err != nil {
			slog.Error("failed to schedule mailbox poll", "error", err)
			os.Exit(1)
		}
	}

	// Cases refused by a full task queue are picked up again.
	err = sched.Add("requeue-pending", cfg.RequeueSchedule, func(ctx context.Context) error {
		_, err := gateway.RequeuePending(ctx, cfg.RequeueMinAge, requeueLimit)
		return err
	})
	if err != nil {
		slog.Error("failed to schedule pending requeue", "error", err)
		os.Exit(1)
	}

	rp := reaper.New(cases, disk, cfg.Retention)
	if err := sched.Add("reaper", cfg.ReaperSchedule, rp.Run); err != nil {
		slog.Error("failed to schedule reaper", "error", err)
		os.Exit(1)
	}
	sched.Start()

	// --- HTTP API ---
	handler := api.NewHandler(gateway, gateway, cases, replies, map[string]api.HealthCheck{
		"postgres": pgPool.Ping,
		"redis":    filter.Ping,
	}, int64(cfg.MaxAttachments)*cfg.MaxAttachmentBytes+1<<20)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 4 * time.Minute,
	}

	// --- Graceful Shutdown ---
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		sched.Stop(5 * time.Second)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			slog.Error("classification workers did not drain", "error", err)
		}
		cancel()

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("support desk listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-stopped
	slog.Info("support desk stopped")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
