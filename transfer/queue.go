// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Enqueue once Run has stopped.
var ErrClosed = errors.New("transfer queue closed")

// Queue is an unbounded FIFO of Works shared between the goroutine
// handling commands and the goroutine that starts workers.
type Queue struct {
	mu     sync.Mutex
	works  []*Work
	closed bool
	wake  chan struct{}
	// wg counts works that are queued or running.
	wg sync.WaitGroup
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends w. It never blocks beyond lock contention. Once
// Run has returned, w is refused: its listener, if any, is closed and
// ErrClosed returned.
func (q *Queue) Enqueue(w *Work) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		v("transfer: refuse %v", w)
		if w.Listener != nil {
			w.Listener.Close()
		}
		return ErrClosed
	}
	q.wg.Add(1)
	q.works = append(q.works, w)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of works not yet dispatched.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.works)
}

func (q *Queue) pop() (*Work, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.works) == 0 {
		return nil, false
	}
	w := q.works[0]
	q.works[0] = nil
	q.works = q.works[1:]
	return w, true
}

// Run pops works in order and calls do for each on a new goroutine.
// It sleeps while the queue is empty, and returns ctx.Err() once ctx
// is done. Works still queued at that point are dropped, and later
// Enqueues fail.
func (q *Queue) Run(ctx context.Context, do func(context.Context, *Work)) error {
	for {
		if ctx.Err() != nil {
			q.drop()
			return ctx.Err()
		}
		for {
			w, ok := q.pop()
			if !ok {
				break
			}
			v("transfer: dispatch %v", w)
			go func() {
				defer q.wg.Done()
				do(ctx, w)
			}()
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
		}
	}
}

func (q *Queue) drop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	for {
		w, ok := q.pop()
		if !ok {
			return
		}
		v("transfer: drop %v", w)
		if w.Listener != nil {
			w.Listener.Close()
		}
		q.wg.Done()
	}
}

// Wait waits until every enqueued work has finished or been dropped,
// or until ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
