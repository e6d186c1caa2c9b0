/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	"context"
	"io"
	"sync"
)

// Stream is a pull-based, single-consumer sequence of session events.
type Stream interface {
	// Next blocks until the next event is available. It returns io.EOF once
	// the producer has closed the stream, a *DecodeError for one malformed
	// event (the stream stays usable), and any other error when the
	// transport broke and no further events will arrive.
	Next(ctx context.Context) (Event, error)

	// Close releases the producer. It is safe to call more than once.
	Close() error
}

// Item is one step of a stream: an event or the error produced in its place.
type Item struct {
	Event Event
	Err   error
}

// ChanStream adapts a producer goroutine to Stream. The producer closes the
// channel when it is done.
type ChanStream struct {
	items   <-chan Item
	closeFn func() error

	once     sync.Once
	closeErr error
}

var _ Stream = (*ChanStream)(nil)

// NewChanStream returns a Stream reading from items. closeFn, if non-nil,
// is called once by Close to stop the producer.
func NewChanStream(items <-chan Item, closeFn func() error) *ChanStream {
	return &ChanStream{items: items, closeFn: closeFn}
}

// Next implements Stream.
func (s *ChanStream) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case it, ok := <-s.items:
		if !ok {
			return nil, io.EOF
		}
		if it.Err != nil {
			return nil, it.Err
		}
		return it.Event, nil
	}
}

// Close implements Stream.
func (s *ChanStream) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}

// replayStream serves a fixed sequence of items.
type replayStream struct {
	mu     sync.Mutex
	items  []Item
	closed bool
}

// Replay returns a Stream that yields items in order and then io.EOF.
func Replay(items ...Item) Stream {
	return &replayStream{items: items}
}

// Events wraps events as stream items.
func Events(evs ...Event) []Item {
	items := make([]Item, 0, len(evs))
	for _, ev := range evs {
		items = append(items, Item{Event: ev})
	}
	return items
}

func (s *replayStream) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.items) == 0 {
		return nil, io.EOF
	}
	it := s.items[0]
	s.items = s.items[1:]
	if it.Err != nil {
		return nil, it.Err
	}
	return it.Event, nil
}

func (s *replayStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
