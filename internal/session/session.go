package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/aegis/kisrt/pkg/config"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// Job names
const (
	JobOpen  = "session-open"
	JobClose = "session-close"
)

// Connector is the part of realtime.Client the session drives.
type Connector interface {
	Connect()
	Disconnect()
}

// NewFromConfig creates a scheduler in the configured time zone.
func NewFromConfig(cfg config.SessionConfig, log *logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("load session location %q: %w", cfg.Location, err)
	}
	return New(loc, log), nil
}

// Register adds the open and close jobs for client. Subscriptions survive a
// close and are sent again on the next open.
func Register(s *Scheduler, cfg config.SessionConfig, client Connector) error {
	open := NewJob(JobOpen, cfg.OpenSpec, func(context.Context) error {
		client.Connect()
		return nil
	})
	if err := s.AddJob(open); err != nil {
		return err
	}

	closeJob := NewJob(JobClose, cfg.CloseSpec, func(context.Context) error {
		client.Disconnect()
		return nil
	})
	if err := s.AddJob(closeJob); err != nil {
		_ = s.RemoveJob(JobOpen)
		return err
	}
	return nil
}

// specParser matches the scheduler's cron.WithSeconds format.
var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// InWindow reports whether now lies between a session open and the following
// close, i.e. the next close fires before the next open.
func InWindow(cfg config.SessionConfig, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return false, fmt.Errorf("load session location %q: %w", cfg.Location, err)
	}
	open, err := specParser.Parse(cfg.OpenSpec)
	if err != nil {
		return false, fmt.Errorf("parse open spec %q: %w", cfg.OpenSpec, err)
	}
	closeAt, err := specParser.Parse(cfg.CloseSpec)
	if err != nil {
		return false, fmt.Errorf("parse close spec %q: %w", cfg.CloseSpec, err)
	}

	now = now.In(loc)
	return closeAt.Next(now).Before(open.Next(now)), nil
}

// Align brings client in line with the session window at now: connected
// inside it, disconnected outside. Subscriptions are kept either way.
func Align(cfg config.SessionConfig, client Connector, now time.Time) (bool, error) {
	open, err := InWindow(cfg, now)
	if err != nil {
		return false, err
	}
	if open {
		client.Connect()
	} else {
		client.Disconnect()
	}
	return open, nil
}
