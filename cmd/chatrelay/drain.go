package main

import (
	"context"
	"os"
	"time"

	"github.com/gaspardpetit/chatrelay/internal/inflight"
	"github.com/gaspardpetit/chatrelay/internal/logx"
	"github.com/gaspardpetit/chatrelay/internal/serverstate"
)

// drainer turns shutdown signals into a drain followed by cancel.
// A zero timeout cancels on the first signal, a negative one waits for the
// in-flight count to reach zero with no deadline. A second signal always
// cancels immediately.
type drainer struct {
	tracker *serverstate.Tracker
	counter *inflight.Counter
	timeout time.Duration
	cancel  context.CancelFunc
}

func (d *drainer) run(ctx context.Context, sigCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
		}
		if d.tracker.IsDraining(ctx) || d.timeout == 0 {
			logx.Log.Warn().Msg("termination requested")
			d.cancel()
			return
		}
		d.tracker.StartDrain(ctx)
		ev := logx.Log.Info().Int64("inflight", d.counter.Load())
		if d.timeout > 0 {
			ev = ev.Dur("timeout", d.timeout)
		}
		ev.Msg("draining; send SIGTERM again to terminate immediately")
		go d.wait(ctx)
	}
}

func (d *drainer) wait(ctx context.Context) {
	wctx := ctx
	if d.timeout > 0 {
		var wcancel context.CancelFunc
		wctx, wcancel = context.WithTimeout(ctx, d.timeout)
		defer wcancel()
	}
	if d.counter.WaitForZero(wctx) {
		logx.Log.Info().Msg("drain complete")
	} else if ctx.Err() == nil {
		logx.Log.Warn().Int64("inflight", d.counter.Load()).Msg("drain timeout exceeded; terminating")
	}
	d.cancel()
}
