package signalctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals возвращает context, который отменяется при получении INT или TERM.
// Полученный сигнал после отмены публикуется в sigCh (буфер 1), чтобы
// вызывающий мог сообщить о нём; после отмены подписка на сигналы снимается
// и повторный Ctrl-C завершает процесс обычным образом.
func WithSignals(parent context.Context) (ctx context.Context, cancel context.CancelFunc, sigCh <-chan os.Signal) {
	ctx, cancel = context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	out := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(c)
		defer close(out)
		select {
		case <-ctx.Done():
		case sig := <-c:
			cancel()
			out <- sig
		}
	}()

	return ctx, cancel, out
}
