// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spendoapp/spendo/cmd/spendo/config"
	"github.com/spendoapp/spendo/pkg/extensions"
	"github.com/spendoapp/spendo/services/api"
	"github.com/spendoapp/spendo/services/api/handlers"
	"github.com/spendoapp/spendo/services/chatkit"
	"github.com/spendoapp/spendo/services/llm"
	"github.com/spendoapp/spendo/services/policy_engine"
	badgerdb "github.com/spendoapp/spendo/services/storage/badger"
	"github.com/spendoapp/spendo/services/store"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Spendo HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	return cmd
}

// serve wires the store, chat stack and HTTP service, then blocks until
// ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	logger := a.logger.Slog()

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	logger.Info("Database ready", "path", s.Path())

	deps := api.Dependencies{Store: s}

	chat, closeChat, err := a.buildChat(s, logger)
	if err != nil {
		return err
	}
	defer closeChat()
	if chat != nil {
		deps.Chat = chat
	}

	sessions, err := a.buildSessions()
	if err != nil {
		return err
	}
	if sessions != nil {
		deps.Sessions = sessions
	}
	defer llm.PurgeSecrets()

	cfg := a.cfg
	svc, err := api.New(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		GinMode:      cfg.Server.GinMode,
		ServiceName:  cfg.Telemetry.ServiceName,
		OTelEndpoint: cfg.Telemetry.OTLPEndpoint,
		Session: handlers.SessionConfig{
			TTL:          cfg.Sessions.TTL,
			SecureCookie: cfg.Sessions.SecureCookie,
			Audit:        a.hooks().Audit(),
		},
		KeepAlive:       cfg.ChatKit.KeepAlive,
		FrontendDir:     cfg.Server.FrontendDir,
		RateLimit:       cfg.ChatKit.RateLimit,
		TTLEnabled:      cfg.Sessions.CleanupEnabled,
		TTL:             cfg.Sessions.Cleanup,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create API service: %w", err)
	}
	return svc.Run(ctx)
}

// buildChat returns nil when no OpenAI key is available; the chat routes
// are then left unregistered.
func (a *app) buildChat(s *store.Store, logger *slog.Logger) (*chatkit.Server, func(), error) {
	noop := func() {}

	key, err := llm.LoadAPIKey(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.SecretPath)
	if errors.Is(err, llm.ErrNoAPIKey) {
		logger.Warn("No OpenAI API key configured, chat endpoints disabled")
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		Key:     key,
		Model:   a.cfg.OpenAI.Workflow.ResponderModel,
		BaseURL: a.cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	threads, closeThreads, err := a.openThreadStore(logger)
	if err != nil {
		return nil, noop, err
	}

	chatCfg := chatkit.Config{
		Store:        threads,
		Workflow:     llm.NewWorkflow(client, a.cfg.OpenAI.Workflow),
		Identity:     chatkit.NewIdentityResolver(s, logger),
		Balances:     s,
		HistoryLimit: a.cfg.OpenAI.Workflow.HistoryLimit,
		Logger:       logger,
	}
	if a.cfg.ChatKit.RedactSensitive {
		engine, err := policy_engine.NewPolicyEngine()
		if err != nil {
			closeThreads()
			return nil, noop, fmt.Errorf("failed to load sensitive data policy: %w", err)
		}
		chatCfg.Redactor = engine
	}

	srv, err := chatkit.NewServer(chatCfg)
	if err != nil {
		closeThreads()
		return nil, noop, err
	}
	return srv, closeThreads, nil
}

func (a *app) openThreadStore(logger *slog.Logger) (chatkit.ThreadStore, func(), error) {
	ck := a.cfg.ChatKit
	if ck.Store != config.ThreadStoreBadger {
		logger.Info("Chat threads kept in memory")
		return chatkit.NewMemoryStore(), func() {}, nil
	}

	bcfg := badgerdb.DefaultConfig(ck.BadgerPath)
	bcfg.Logger = logger
	db, err := badgerdb.Open(bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open chat thread store: %w", err)
	}
	logger.Info("Chat threads persisted in BadgerDB", "path", db.Path())
	return chatkit.NewBadgerStore(db), func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close chat thread store", "error", err)
		}
	}, nil
}

// buildSessions returns nil unless both a key and a workflow id are set.
func (a *app) buildSessions() (*llm.SessionClient, error) {
	if a.cfg.ChatKit.WorkflowID == "" {
		return nil, nil
	}
	key, err := llm.LoadAPIKey(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.SecretPath)
	if errors.Is(err, llm.ErrNoAPIKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return llm.NewSessionClient(llm.SessionClientConfig{
		Key:        key,
		WorkflowID: a.cfg.ChatKit.WorkflowID,
		URL:        a.cfg.ChatKit.SessionURL,
	})
}

// hooks returns the extension hooks for this run. Audit events go to the main
// log when logging.audit is on.
func (a *app) hooks() extensions.Options {
	opts := extensions.DefaultOptions()
	if a.cfg.Logging.Audit {
		opts = opts.WithAudit(extensions.NewSlogAuditLogger(a.logger.Slog()))
	}
	return opts
}
