// Package channels provides a latest-value send helper and a fan-out hub.
package channels

import "errors"

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelFull   = errors.New("channel full")
)

// SendLatest sends msg without blocking. When the buffer is full the oldest
// queued message is discarded to make room, so slow receivers always see the
// most recent value. Reports whether a message was discarded.
func SendLatest[T any](ch chan T, msg T) (discarded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed
		}
	}()

	select {
	case ch <- msg:
		return false, nil
	default:
	}

	select {
	case <-ch:
		discarded = true
	default:
	}

	select {
	case ch <- msg:
		return discarded, nil
	default:
		return discarded, ErrChannelFull
	}
}
