package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/member-dashboard-api/internal/config"
	"github.com/rs/zerolog"
)

// Notifier receives change signals.
type Notifier interface {
	Notify()
}

// Listener forwards Postgres NOTIFY events on the members channel to a
// Notifier.
type Listener struct {
	dsn    string
	cfg    config.RealtimeConfig
	target Notifier
	log    zerolog.Logger
}

// NewListener creates a listener for cfg.Channel
func NewListener(dsn string, cfg config.RealtimeConfig, target Notifier, log zerolog.Logger) *Listener {
	return &Listener{
		dsn:    dsn,
		cfg:    cfg,
		target: target,
		log:    log.With().Str("component", "pg_listener").Str("channel", cfg.Channel).Logger(),
	}
}

// Run listens until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	pl := pq.NewListener(l.dsn, l.cfg.MinReconnectInterval, l.cfg.MaxReconnectInterval, l.event)
	defer pl.Close()

	if err := pl.Listen(l.cfg.Channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.cfg.Channel, err)
	}
	l.log.Info().Msg("Listening for member changes")

	l.forward(ctx, pl.Notify, pl.Ping)
	return nil
}

func (l *Listener) event(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.log.Debug().Msg("Listener connected")
	case pq.ListenerEventDisconnected:
		l.log.Warn().Err(err).Msg("Listener disconnected")
	case pq.ListenerEventReconnected:
		l.log.Info().Msg("Listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		l.log.Warn().Err(err).Msg("Listener reconnect attempt failed")
	}
}

// forward signals target for every notification. A nil notification means
// the connection was re-established and changes may have been missed, so it
// also signals.
func (l *Listener) forward(ctx context.Context, notifications <-chan *pq.Notification, ping func() error) {
	interval := l.cfg.PingInterval
	if interval <= 0 {
		interval = 90 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if n != nil {
				l.log.Debug().Str("op", n.Extra).Msg("Member change notification")
			}
			l.target.Notify()
		case <-ticker.C:
			if err := ping(); err != nil {
				l.log.Warn().Err(err).Msg("Listener ping failed")
			}
		}
	}
}
