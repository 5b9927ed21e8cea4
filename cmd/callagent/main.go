// callagent is a headless call endpoint. It holds a signaling connection for one user,
// answers incoming calls according to a policy, can place a call at startup, and keeps
// call history in a local SQLite file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
	_ "modernc.org/sqlite"

	"commerce-calls/internal/calls"
	"commerce-calls/internal/media"
	"commerce-calls/internal/records"
	"commerce-calls/internal/signaling"
	"commerce-calls/pkg/logger"
	"commerce-calls/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.NewWriter(cfg.Env, os.Stderr).With("self_id", cfg.SelfID, "tenant_id", cfg.TenantID)

	db, err := utils.OpenSQLite(ctx, cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("history db: %w", err)
	}
	defer db.Close()
	history := records.NewSQLRepo(db, records.SQLite)
	if err := history.Migrate(ctx); err != nil {
		return fmt.Errorf("history db: %w", err)
	}

	owner := records.Owner{TenantID: cfg.TenantID, UserID: cfg.SelfID}
	sink := records.MultiSink{records.NewSink(records.NewService(history), owner)}
	if cfg.APIURL != "" {
		sink = append(sink, &records.HTTPSink{
			BaseURL: cfg.APIURL,
			Token:   cfg.Token,
			Client:  &http.Client{Timeout: 10 * time.Second},
		})
	}

	a := newAgent(cfg, log)
	a.client = &signaling.Client{
		URL:    cfg.RelayURL,
		Token:  cfg.Token,
		Dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		Logger: log,
	}
	a.manager, err = calls.NewManager(calls.Config{
		SelfID:      cfg.SelfID,
		SelfName:    cfg.SelfName,
		SelfAvatar:  cfg.SelfAvatar,
		Transport:   a.client,
		Engines:     media.NewFactory(media.Config{ICEServers: cfg.ICEServers, Logger: log}),
		Sink:        sink,
		Hooks:       a.hooks(),
		Logger:      log,
		DialTimeout: cfg.DialTimeout,
		RingTimeout: cfg.RingTimeout,
	})
	if err != nil {
		return err
	}

	log.Info("callagent started", "relay", cfg.RelayURL, "auto_answer", cfg.AutoAnswer)
	return a.run(ctx)
}
