// Package correlation tracks, per conversation, the most recent
// extract-and-persist task so trailing media can find its listing.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTaskFailed is returned by Wait when the task settled without a listing.
var ErrTaskFailed = errors.New("listing task failed")

type State int

const (
	Pending State = iota
	SettledSuccess
	SettledFailure
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case SettledSuccess:
		return "settled_success"
	case SettledFailure:
		return "settled_failure"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Task is a one-shot future for a listing identifier. It settles exactly
// once; later Succeed or Fail calls are ignored.
type Task struct {
	ConversationID string
	RegisteredAt   time.Time

	once      sync.Once
	done      chan struct{}
	listingID uuid.UUID
	err       error

	chainMu sync.Mutex
	tail    chan struct{}
}

func NewTask(conversationID string) *Task {
	return &Task{
		ConversationID: conversationID,
		RegisteredAt:   time.Now(),
		done:           make(chan struct{}),
	}
}

// Succeed settles the task with the persisted listing's identifier.
func (t *Task) Succeed(listingID uuid.UUID) bool {
	return t.settle(listingID, nil)
}

// Fail settles the task without a listing.
func (t *Task) Fail(err error) bool {
	if err == nil {
		err = ErrTaskFailed
	}
	return t.settle(uuid.Nil, err)
}

func (t *Task) settle(id uuid.UUID, err error) bool {
	settled := false
	t.once.Do(func() {
		t.listingID = id
		t.err = err
		settled = true
		close(t.done)
	})
	return settled
}

// Done is closed once the task settles.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) State() State {
	select {
	case <-t.done:
		if t.err != nil {
			return SettledFailure
		}
		return SettledSuccess
	default:
		return Pending
	}
}

// Wait blocks until the task settles or ctx ends. A failed task yields an
// error wrapping ErrTaskFailed.
func (t *Task) Wait(ctx context.Context) (uuid.UUID, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	if t.err != nil {
		if errors.Is(t.err, ErrTaskFailed) {
			return uuid.Nil, t.err
		}
		return uuid.Nil, fmt.Errorf("%w: %w", ErrTaskFailed, t.err)
	}
	return t.listingID, nil
}

var released = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Chain reserves the next attachment slot on the task. The returned channel
// closes once every earlier slot has been released. release frees this slot
// after the earlier ones, even when called before turn was granted, and is
// safe to call more than once. Slots are granted in call order.
func (t *Task) Chain() (turn <-chan struct{}, release func()) {
	next := make(chan struct{})

	t.chainMu.Lock()
	prev := t.tail
	t.tail = next
	t.chainMu.Unlock()

	if prev == nil {
		prev = released
	}
	var once sync.Once
	return prev, func() {
		once.Do(func() {
			go func() {
				<-prev
				close(next)
			}()
		})
	}
}
