package services

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// FanOut copies every value from in to each out channel until in closes or
// ctx is cancelled, then closes the outputs. A full output drops the value.
func FanOut[T any](ctx context.Context, name string, in <-chan T, outs ...chan T) {
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-in:
			if !ok {
				return
			}
			for i, out := range outs {
				select {
				case out <- v:
				default:
					log.Warnf("FanOut: %s consumer %d full, dropping value", name, i)
				}
			}
		}
	}
}
