package service

import (
	"context"
	"log/slog"

	"github.com/flicky/go-ecommerce-core/internal/notify"
)

// feed returns a channel that carries load's result once immediately and
// again after every change accepted by filter. The channel holds at most one
// value; a reader that falls behind sees only the latest snapshot. It is
// closed when ctx is done.
func feed[T any](
	ctx context.Context,
	hub *notify.Hub,
	filter notify.Filter,
	log *slog.Logger,
	load func(context.Context) (T, error),
) (<-chan T, error) {
	sub := hub.Subscribe(filter)
	first, err := load(ctx)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan T, 1)
	out <- first

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok || !drain(sub.C()) {
					return
				}
				if sub.Lagged() {
					log.Debug("projection subscriber lagged, reloading")
				}
				v, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Warn("reload projection", "error", err)
					continue
				}
				select {
				case <-out:
				default:
				}
				out <- v
			}
		}
	}()
	return out, nil
}

// drain discards queued notifications and reports whether c is still open.
func drain(c <-chan notify.Change) bool {
	for {
		select {
		case _, ok := <-c:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
