package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/calendar"
	"github.com/hideapp/hide/internal/messaging"
	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
)

// ErrExecutorRunning is returned by Run when another Run is active.
var ErrExecutorRunning = errors.New("command executor already running")

// Source delivers encoded commands in arrival order.
type Source interface {
	Messages() <-chan []byte
}

// Resolver deletes the active card of a conversation.
type Resolver interface {
	ResolveConversation(ctx context.Context, key model.ConversationKey) (string, bool, error)
}

// Config controls pacing and calendar deduplication.
type Config struct {
	Pacer        Pacer
	DedupeWindow time.Duration
	DedupeSize   int // zero means DefaultDedupeSize
	// OnMute runs after a conversation is muted, e.g. to drop its pending trigger.
	OnMute func(key model.ConversationKey)
}

// Executor is the single consumer of the command stream. Running two
// executors over one Source would apply every command twice.
type Executor struct {
	source    Source
	codec     *Codec
	cards     Resolver
	mutes     store.Mutes
	messenger messaging.Client
	calendar  calendar.Sink
	pacer     Pacer
	dedupe    *Deduper
	onMute    func(model.ConversationKey)
	running   atomic.Bool
	log       zerolog.Logger
}

// NewExecutor constructs an Executor from dependencies.
func NewExecutor(src Source, codec *Codec, cards Resolver, mutes store.Mutes, msg messaging.Client, cal calendar.Sink, cfg Config, log zerolog.Logger) *Executor {
	return &Executor{
		source:    src,
		codec:     codec,
		cards:     cards,
		mutes:     mutes,
		messenger: msg,
		calendar:  cal,
		pacer:     cfg.Pacer,
		dedupe:    NewDeduper(cfg.DedupeSize, cfg.DedupeWindow),
		onMute:    cfg.OnMute,
		log:       log.With().Str("component", "executor").Logger(),
	}
}

// Run consumes commands until ctx is cancelled or the source is closed.
// Failures of individual commands are logged and never stop the loop.
func (e *Executor) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrExecutorRunning
	}
	defer e.running.Store(false)

	e.log.Info().Msg("command executor starting")
	msgs := e.source.Messages()
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("command executor stopping")
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				e.log.Info().Msg("command source closed")
				return nil
			}
			e.handle(ctx, raw)
		}
	}
}

// handle decodes and applies one command; malformed payloads are dropped.
func (e *Executor) handle(ctx context.Context, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error().
				Err(fmt.Errorf("panic: %v", rec)).
				Bytes("stack", debug.Stack()).
				Msg("command panicked")
		}
	}()

	cmd, err := e.codec.Decode(raw)
	if err != nil {
		e.log.Warn().Err(err).Bytes("payload", truncate(raw, 512)).Msg("dropping malformed command")
		return
	}
	if err := e.Execute(ctx, cmd); err != nil {
		e.log.Error().Stack().Err(err).Str("action", string(cmd.Action())).Msg("command failed")
	}
}

// Execute applies a decoded command.
func (e *Executor) Execute(ctx context.Context, cmd model.Command) error {
	switch c := cmd.(type) {
	case model.ReplyCommand:
		return e.reply(ctx, c)
	case model.MuteCommand:
		return e.mute(ctx, c)
	case model.CalendarCommand:
		return e.addEvent(ctx, c)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, cmd)
	}
}

func (e *Executor) reply(ctx context.Context, c model.ReplyCommand) error {
	log := e.log.With().Str("conversation_key", c.ConversationKey.String()).Logger()

	sent := 0
	for i, text := range c.Texts {
		if err := e.messenger.SendTyping(ctx, c.ConversationKey); err != nil && messaging.IsConnectionError(err) {
			log.Error().Err(err).Int("remaining", len(c.Texts)-i).Msg("connection lost, abandoning reply batch")
			break
		}
		if err := e.pacer.Wait(ctx, e.pacer.TypingDelay(text)); err != nil {
			return err
		}

		err := e.messenger.SendMessage(ctx, c.ConversationKey, text)
		if err != nil && messaging.IsConnectionError(err) {
			log.Error().Err(err).Int("remaining", len(c.Texts)-i).Msg("connection lost, abandoning reply batch")
			break
		}
		if err != nil {
			log.Error().Err(err).Int("index", i).Msg("reply bubble failed")
		} else {
			sent++
		}

		if i < len(c.Texts)-1 {
			if err := e.pacer.Wait(ctx, e.pacer.Gap()); err != nil {
				return err
			}
		}
	}
	log.Info().Int("sent", sent).Int("total", len(c.Texts)).Msg("reply delivered")

	return e.resolve(ctx, c.ConversationKey)
}

func (e *Executor) mute(ctx context.Context, c model.MuteCommand) error {
	if err := e.mutes.Add(ctx, c.ConversationKey); err != nil {
		return fmt.Errorf("mute %s: %w", c.ConversationKey, err)
	}
	if e.onMute != nil {
		e.onMute(c.ConversationKey)
	}
	e.log.Info().Str("conversation_key", c.ConversationKey.String()).Msg("conversation muted")
	return e.resolve(ctx, c.ConversationKey)
}

func (e *Executor) addEvent(ctx context.Context, c model.CalendarCommand) error {
	if e.dedupe.Seen(c.IdempotencyKey) {
		e.log.Info().Str("idempotency_key", c.IdempotencyKey).Str("title", c.Title).Msg("duplicate calendar command suppressed")
		return nil
	}
	ev := calendar.Event{Title: c.Title, Start: c.Start, Duration: c.Duration, Category: c.Category}
	if err := e.calendar.AddEvent(ctx, ev); err != nil {
		e.dedupe.Forget(c.IdempotencyKey)
		return fmt.Errorf("add calendar event %q: %w", c.Title, err)
	}
	e.log.Info().Str("title", c.Title).Time("start", c.Start).Dur("duration", c.Duration).Msg("calendar event added")
	return nil
}

func (e *Executor) resolve(ctx context.Context, key model.ConversationKey) error {
	id, removed, err := e.cards.ResolveConversation(ctx, key)
	if err != nil {
		return fmt.Errorf("resolve card for %s: %w", key, err)
	}
	if removed {
		e.log.Debug().Str("card_id", id).Str("conversation_key", key.String()).Msg("card resolved")
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
