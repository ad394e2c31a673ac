// Package eventbus implements spec.md §4.9's Event Bus: a broadcast
// channel with bounded capacity per subscriber. A slow subscriber never
// blocks a publisher; once its buffer is full, the oldest buffered
// event is dropped to make room, and the subscriber's next read
// surfaces a Lagged event reporting how many were lost, so it knows to
// resynchronize via a query instead of trusting its event stream alone.
package eventbus
