// Package executor turns authorized remote actions into local input. The
// actual OS-level injection is behind KeyInjector; the host ships a logging
// injector and platform helpers can provide a real one.
package executor

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// KeyInjector delivers synthetic input to the host desktop.
type KeyInjector interface {
	KeyDown(key string) error
	KeyUp(key string) error
	TypeText(text string) error
}

// Config holds executor settings.
type Config struct {
	// Injector receives the synthetic input. Default: a LogInjector.
	Injector KeyInjector

	// Rate and Burst bound how many actions run per second.
	// Default: 20/s with a burst of 10.
	Rate  rate.Limit
	Burst int

	// Modifier is the clipboard chord modifier. Default: "cmd" on darwin,
	// "ctrl" elsewhere.
	Modifier string

	// Logger receives executed actions. Nil discards.
	Logger *log.Logger
}

// Executor runs text, clipboard and custom actions.
type Executor struct {
	injector KeyInjector
	limiter  *rate.Limiter
	modifier string
	logger   *log.Logger

	// sleep waits between replayed events; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor.
func New(config Config) *Executor {
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if config.Injector == nil {
		config.Injector = NewLogInjector(logger)
	}
	if config.Rate == 0 {
		config.Rate = 20
	}
	if config.Burst == 0 {
		config.Burst = 10
	}
	if config.Modifier == "" {
		config.Modifier = "ctrl"
		if runtime.GOOS == "darwin" {
			config.Modifier = "cmd"
		}
	}
	return &Executor{
		injector: config.Injector,
		limiter:  rate.NewLimiter(config.Rate, config.Burst),
		modifier: config.Modifier,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// TypeText types text on the host.
func (e *Executor) TypeText(ctx context.Context, text string) error {
	if err := e.allow(); err != nil {
		return err
	}
	e.logger.Printf("executor: typing %d characters", len([]rune(text)))
	if err := e.injector.TypeText(text); err != nil {
		return apperrors.Wrap(apperrors.CodeActionExecuteFailed, "failed to type text", err)
	}
	return nil
}

// Copy presses the platform copy chord.
func (e *Executor) Copy(ctx context.Context) error {
	if err := e.allow(); err != nil {
		return err
	}
	e.logger.Printf("executor: copy")
	return e.chord(e.modifier, "c")
}

// Paste presses the platform paste chord.
func (e *Executor) Paste(ctx context.Context) error {
	if err := e.allow(); err != nil {
		return err
	}
	e.logger.Printf("executor: paste")
	return e.chord(e.modifier, "v")
}

// Replay plays a custom action. Sequential actions are replayed event by
// event with their recorded timing; Normal actions press every recorded key
// as one chord.
func (e *Executor) Replay(ctx context.Context, action protocol.CustomAction) error {
	if err := e.allow(); err != nil {
		return err
	}
	e.logger.Printf("executor: replaying %q (%s, %d events)", action.Name, action.ShortcutType, len(action.KeySequence))

	if action.ShortcutType == protocol.ShortcutSequential {
		return e.replaySequential(ctx, action.KeySequence)
	}
	return e.chord(chordKeys(action.KeySequence)...)
}

func (e *Executor) replaySequential(ctx context.Context, events []protocol.KeyEvent) error {
	held := make(map[string]bool)
	var order []string
	var last int64

	// Anything still held when replay ends or fails gets released.
	defer func() {
		for i := len(order) - 1; i >= 0; i-- {
			if held[order[i]] {
				e.injector.KeyUp(order[i])
			}
		}
	}()

	for _, ev := range events {
		if delay := ev.Timestamp - last; delay > 0 {
			if err := e.sleep(ctx, time.Duration(delay)*time.Millisecond); err != nil {
				return err
			}
		}
		last = ev.Timestamp

		var err error
		switch ev.EventType {
		case protocol.EventRelease:
			if held[ev.Key] {
				err = e.injector.KeyUp(ev.Key)
				held[ev.Key] = false
			}
		default:
			if held[ev.Key] {
				// Press without an intervening release: tap it.
				if err = e.injector.KeyUp(ev.Key); err != nil {
					break
				}
			}
			err = e.injector.KeyDown(ev.Key)
			if !held[ev.Key] {
				order = append(order, ev.Key)
			}
			held[ev.Key] = true
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeActionExecuteFailed, fmt.Sprintf("failed to replay key %s", ev.Key), err)
		}
	}
	return nil
}

// chord presses keys in order and releases them in reverse.
func (e *Executor) chord(keys ...string) error {
	pressed := 0
	var err error
	for _, k := range keys {
		if err = e.injector.KeyDown(k); err != nil {
			break
		}
		pressed++
	}
	for i := pressed - 1; i >= 0; i-- {
		if upErr := e.injector.KeyUp(keys[i]); upErr != nil && err == nil {
			err = upErr
		}
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeActionExecuteFailed, "failed to press chord", err)
	}
	return nil
}

func (e *Executor) allow() error {
	if !e.limiter.Allow() {
		return apperrors.New(apperrors.CodeActionRateLimited, "too many actions")
	}
	return nil
}

// chordKeys returns the distinct pressed keys in first-press order.
func chordKeys(events []protocol.KeyEvent) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, ev := range events {
		if ev.EventType == protocol.EventRelease || seen[ev.Key] {
			continue
		}
		seen[ev.Key] = true
		keys = append(keys, ev.Key)
	}
	return keys
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
