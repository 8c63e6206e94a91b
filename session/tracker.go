// Package session mirrors the chat-session collaborator's lifecycle and
// forwards every transition to dashboard subscribers.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type State string

const (
	StateStarting     State = "starting"
	StateQR           State = "qr"
	StateLoading      State = "loading"
	StateReady        State = "ready"
	StateDisconnected State = "disconnected"
)

var ErrUnknownUpdate = errors.New("unknown session update")

// Notifier receives lifecycle notifications.
type Notifier interface {
	PublishClientReady()
	PublishClientDisconnected(reason string)
	PublishQRChallenge(qr string)
	PublishLoadingProgress(percent int, message string)
}

// Update is the wire shape posted by the chat-session collaborator.
type Update struct {
	Type    string `json:"type"`
	QR      string `json:"qr,omitempty"`
	Percent int    `json:"percent,omitempty"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshot is the last known session state, not a replay of events.
type Snapshot struct {
	State     State     `json:"state"`
	QR        string    `json:"qr,omitempty"`
	Percent   int       `json:"percent,omitempty"`
	Message   string    `json:"message,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	notifier Notifier
	logger   *slog.Logger
}

func NewTracker(notifier Notifier, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		snap:     Snapshot{State: StateStarting, UpdatedAt: time.Now()},
		notifier: notifier,
		logger:   logger.With("component", "session"),
	}
}

func (t *Tracker) set(s Snapshot) {
	s.UpdatedAt = time.Now()
	t.mu.Lock()
	t.snap = s
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

func (t *Tracker) QR(qr string) {
	t.set(Snapshot{State: StateQR, QR: qr})
	t.logger.Info("qr challenge received")
	t.notifier.PublishQRChallenge(qr)
}

func (t *Tracker) Loading(percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.set(Snapshot{State: StateLoading, Percent: percent, Message: message})
	t.logger.Debug("session loading", "percent", percent, "message", message)
	t.notifier.PublishLoadingProgress(percent, message)
}

func (t *Tracker) Ready() {
	t.set(Snapshot{State: StateReady})
	t.logger.Info("session ready")
	t.notifier.PublishClientReady()
}

func (t *Tracker) Disconnected(reason string) {
	t.set(Snapshot{State: StateDisconnected, Reason: reason})
	t.logger.Warn("session disconnected", "reason", reason)
	t.notifier.PublishClientDisconnected(reason)
}

// Apply dispatches a webhook update.
func (t *Tracker) Apply(u Update) error {
	switch u.Type {
	case "qr":
		if u.QR == "" {
			return fmt.Errorf("%w: qr update without payload", ErrUnknownUpdate)
		}
		t.QR(u.QR)
	case "loading":
		t.Loading(u.Percent, u.Message)
	case "ready":
		t.Ready()
	case "disconnected":
		t.Disconnected(u.Reason)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownUpdate, u.Type)
	}
	return nil
}
