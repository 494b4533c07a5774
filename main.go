package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/sadopc/linecook/internal/config"
	"github.com/sadopc/linecook/internal/schedule"
	"github.com/sadopc/linecook/internal/session"
	"github.com/sadopc/linecook/internal/stats"
	"github.com/sadopc/linecook/internal/store"
	"github.com/sadopc/linecook/internal/timer"
	"github.com/sadopc/linecook/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	s.SetLogger(logger.WithPrefix("store"))

	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	snaps := timer.NewFileSnapshots(cfg.SnapshotPath)
	agg := stats.New(s, cfg.Location())
	svc := session.New(s, snaps, timer.System, session.Options{
		ManagerCode:      cfg.ManagerCode,
		ManagerPins:      cfg.ManagerPins,
		MinTicketSeconds: cfg.MinTicketSeconds,
	}, logger)

	if _, err := svc.Restore(); err != nil {
		logger.Error("restoring session", "err", err)
	}
	if n, err := svc.Resume(); err != nil {
		logger.Error("resuming tickets", "err", err)
	} else if n > 0 {
		logger.Info("resumed tickets", "count", n)
	}

	app := tui.NewApp(svc, s, agg, tui.Options{
		ExportDir:        cfg.ExportDir,
		MinTicketSeconds: cfg.MinTicketSeconds,
	})
	p := tea.NewProgram(app, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := schedule.New(cfg.Location(), logger.WithPrefix("schedule"),
		schedule.Daily{
			Name: "auto-logout",
			At:   cfg.LogoutAt(),
			Job: func(_ context.Context, cutoff time.Time) error {
				out, err := svc.AutoLogout(cutoff)
				if err != nil {
					return err
				}
				p.Send(tui.AutoLogoutMsg{Cutoff: cutoff, SignedOut: out})
				return nil
			},
		},
		schedule.Daily{
			Name: "auto-clock-out",
			At:   cfg.ClockOutAt(),
			Job: func(_ context.Context, cutoff time.Time) error {
				n, err := svc.AutoClockOutSweep(cutoff)
				if err != nil {
					return err
				}
				logger.Info("clock logs swept", "closed", n, "cutoff", cutoff)
				return nil
			},
		},
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	_, runErr := p.Run()

	cancel()
	<-done

	if err := svc.Suspend(); err != nil {
		logger.Error("saving open tickets", "err", err)
	}
	return runErr
}

// newLogger writes to the configured log file; the terminal belongs to the
// UI.
func newLogger(cfg *config.Config) (*log.Logger, func(), error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           level,
		Prefix:          "linecook",
	})
	return logger, func() { f.Close() }, nil
}
