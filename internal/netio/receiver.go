package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/urbasus/goslp/internal/slp"
)

// ErrNoListeners indicates that Run was called without any listeners.
var ErrNoListeners = errors.New("receiver run: no listeners provided")

// Demuxer routes a decoded SLP message to the agent handling it and
// returns the reply to send back, if any. This interface decouples the
// receiver from internal/slp.Agent to keep netio free of a hard
// dependency on agent construction.
type Demuxer interface {
	HandleInbound(ctx context.Context, peer netip.Addr, msg slp.Message, now time.Time) (*slp.Message, error)
}

// Receiver reads SLP messages from one or more Listeners, decodes them,
// routes them to a Demuxer, and sends back whatever reply the Demuxer
// produces.
type Receiver struct {
	demuxer Demuxer
	sender  *Sender
	logger  *slog.Logger
}

// NewReceiver creates a Receiver that routes decoded messages to demuxer
// and writes replies via sender.
func NewReceiver(demuxer Demuxer, sender *Sender, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		demuxer: demuxer,
		sender:  sender,
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from all listeners concurrently until ctx is cancelled.
// Each listener gets its own goroutine. Run blocks until all listener
// goroutines complete.
func (r *Receiver) Run(ctx context.Context, listeners ...*Listener) error {
	if len(listeners) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(listeners))

	for _, ln := range listeners {
		go func(l *Listener) {
			r.recvLoop(ctx, l)
			done <- struct{}{}
		}(ln)
	}

	for range len(listeners) {
		<-done
	}

	return nil
}

// recvLoop reads messages from a single Listener in a loop until ctx is
// cancelled. Errors from individual reads are logged but do not stop the
// loop; only context cancellation terminates it.
func (r *Receiver) recvLoop(ctx context.Context, ln *Listener) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(ctx, ln); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("recv error", slog.String("error", err.Error()))
		}
	}
}

// recvOne performs a single receive-decode-demux-reply cycle.
func (r *Receiver) recvOne(ctx context.Context, ln *Listener) error {
	raw, meta, err := ln.Recv(ctx)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}

	msg, err := slp.Decode(raw)
	if err != nil {
		r.logger.Debug("invalid SLP message",
			slog.String("src", meta.SrcAddr.String()),
			slog.String("error", err.Error()),
		)
		return nil // dropped silently, mirroring RFC 2608's no-reply-on-parse-error stance
	}

	reply, err := r.demuxer.HandleInbound(ctx, meta.SrcAddr, msg, time.Now())
	if err != nil {
		r.logger.Debug("handle inbound failed",
			slog.String("src", meta.SrcAddr.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if reply == nil || r.sender == nil {
		return nil
	}

	out, err := slp.Encode(*reply)
	if err != nil {
		r.logger.Warn("encode reply failed", slog.String("error", err.Error()))
		return nil
	}

	if err := r.sender.SendUnicast(ctx, meta.SrcAddr, out); err != nil {
		r.logger.Warn("send reply failed",
			slog.String("dst", meta.SrcAddr.String()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
