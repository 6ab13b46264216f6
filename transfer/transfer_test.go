// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/u-root/u-root/pkg/ulog/ulogtest"
)

func TestNewWork(t *testing.T) {
	long := strings.Repeat("n", MaxNameLen+10)
	w := NewWork(Get, Sender, long, 31338, 5)
	if len(w.Name) != MaxNameLen {
		t.Errorf("NewWork: len(Name) %d != %d", len(w.Name), MaxNameLen)
	}
	if s, want := NewWork(Put, Receiver, "a", 1, 2).String(), "PUT name: a port: 1 size: 2"; s != want {
		t.Errorf("String(): %q != %q", s, want)
	}
	if NewWork(Get, Sender, "a", 1, 1).ID == NewWork(Get, Sender, "a", 1, 1).ID {
		t.Errorf("two works share an ID")
	}
}

func TestQueueOrder(t *testing.T) {
	q := NewQueue()
	for _, n := range []string{"a", "b", "c"} {
		q.Enqueue(NewWork(Get, Sender, n, 0, 0))
	}
	if q.Len() != 3 {
		t.Fatalf("Len(): %d != 3", q.Len())
	}
	for _, n := range []string{"a", "b", "c"} {
		w, ok := q.pop()
		if !ok || w.Name != n {
			t.Fatalf("pop(): (%v, %v) != (%q, true)", w, ok, n)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatalf("pop() on empty queue: true != false")
	}
}

func TestQueueRunWait(t *testing.T) {
	v = t.Logf
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n atomic.Int32
	errc := make(chan error, 1)
	go func() {
		errc <- q.Run(ctx, func(context.Context, *Work) { n.Add(1) })
	}()

	for i := 0; i < 3; i++ {
		q.Enqueue(NewWork(Get, Sender, "f", 0, 0))
	}
	wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
	defer wcancel()
	if err := q.Wait(wctx); err != nil {
		t.Fatalf("Wait: %v != nil", err)
	}
	if n.Load() != 3 {
		t.Errorf("ran %d works, want 3", n.Load())
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run: %v != %v", err, context.Canceled)
	}
}

func TestQueueDrop(t *testing.T) {
	v = t.Logf
	q := NewQueue()
	q.Enqueue(NewWork(Get, Sender, "a", 0, 0))
	q.Enqueue(NewWork(Put, Receiver, "b", 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Run(ctx, func(context.Context, *Work) { t.Errorf("work dispatched after cancel") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v != %v", err, context.Canceled)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after drop: %d != 0", q.Len())
	}
	if err := q.Wait(context.Background()); err != nil {
		t.Errorf("Wait after drop: %v != nil", err)
	}
}

func TestEnqueueAfterRun(t *testing.T) {
	v = t.Logf
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Run(ctx, func(context.Context, *Work) {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v != %v", err, context.Canceled)
	}

	ln, port := listen(t)
	w := NewWork(Get, Sender, "late", port, 1)
	w.Listener = ln
	if err := q.Enqueue(w); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after Run: %v != %v", err, ErrClosed)
	}
	if _, err := ln.Accept(); err == nil {
		t.Errorf("listener of a refused work is still open")
	}
	if q.Len() != 0 {
		t.Errorf("Len(): %d != 0", q.Len())
	}
	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()
	if err := q.Wait(wctx); err != nil {
		t.Errorf("Wait: %v != nil", err)
	}
}

func mkfile(t *testing.T, dir, name string, size int) []byte {
	t.Helper()
	b := bytes.Repeat([]byte("0123456789"), size/10+1)[:size]
	if err := os.WriteFile(filepath.Join(dir, name), b, 0644); err != nil {
		t.Fatal(err)
	}
	return b
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return ln, ln.Addr().(*net.TCPAddr).Port
}

// pair runs one Sender and one Receiver against each other.
func pair(t *testing.T, src, dst *Worker, name string, size int64) (error, error) {
	t.Helper()
	ln, port := listen(t)
	s := NewWork(Get, Sender, name, port, size)
	s.Listener = ln
	r := NewWork(Get, Receiver, name, port, size)
	r.Peer = "127.0.0.1"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- src.Do(ctx, s) }()
	rerr := dst.Do(ctx, r)
	return <-errc, rerr
}

func TestSendReceive(t *testing.T) {
	v = t.Logf
	sdir, rdir := t.TempDir(), t.TempDir()
	want := mkfile(t, sdir, "report.txt", 100)
	src := &Worker{Dir: sdir, Log: &ulogtest.Logger{TB: t}}
	dst := &Worker{Dir: rdir, Log: &ulogtest.Logger{TB: t}}

	for i := 1; i <= 2; i++ {
		serr, rerr := pair(t, src, dst, "report.txt", 100)
		if serr != nil || rerr != nil {
			t.Fatalf("transfer %d: (%v, %v) != (nil, nil)", i, serr, rerr)
		}
		got, err := os.ReadFile(filepath.Join(rdir, "report.txt"+Suffix))
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 100*i {
			t.Fatalf("transfer %d: received file is %d bytes, want %d", i, len(got), 100*i)
		}
		if !bytes.Equal(got[100*(i-1):], want) {
			t.Errorf("transfer %d: received bytes differ", i)
		}
	}
}

func TestSendEmpty(t *testing.T) {
	v = t.Logf
	sdir, rdir := t.TempDir(), t.TempDir()
	mkfile(t, sdir, "empty", 0)
	serr, rerr := pair(t, &Worker{Dir: sdir}, &Worker{Dir: rdir}, "empty", 0)
	if serr != nil || rerr != nil {
		t.Fatalf("transfer: (%v, %v) != (nil, nil)", serr, rerr)
	}
	fi, err := os.Stat(filepath.Join(rdir, "empty"+Suffix))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 0 {
		t.Errorf("received %d bytes, want 0", fi.Size())
	}
}

func TestSendShortFile(t *testing.T) {
	v = t.Logf
	dir := t.TempDir()
	mkfile(t, dir, "short", 10)
	ln, port := listen(t)
	w := NewWork(Get, Sender, "short", port, 100)
	w.Listener = ln
	err := (&Worker{Dir: dir}).Do(context.Background(), w)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("Do: %v is not %v", err, ErrSizeMismatch)
	}
	var se *SizeMismatchError
	if !errors.As(err, &se) || se.Want != 100 || se.Got != 10 {
		t.Errorf("Do: %#v, want Want 100 Got 10", se)
	}
}

func TestReceiveShort(t *testing.T) {
	v = t.Logf
	dir := t.TempDir()
	ln, port := listen(t)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Write([]byte("0123456789"))
		c.Close()
	}()

	w := NewWork(Put, Receiver, "upload", port, 100)
	w.Peer = "127.0.0.1"
	err := (&Worker{Dir: dir}).Do(context.Background(), w)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("Do: %v is not %v", err, ErrSizeMismatch)
	}
	if _, err := os.Stat(filepath.Join(dir, "upload"+Suffix)); !os.IsNotExist(err) {
		t.Errorf("short transfer left a file behind: %v", err)
	}
}

func TestReceiveHugeSize(t *testing.T) {
	v = t.Logf
	dir := t.TempDir()
	ln, port := listen(t)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Write([]byte("0123456789"))
		c.Close()
	}()

	w := NewWork(Put, Receiver, "huge", port, 9000000000000000000)
	w.Peer = "127.0.0.1"
	err := (&Worker{Dir: dir}).Do(context.Background(), w)
	var se *SizeMismatchError
	if !errors.As(err, &se) || se.Got != 10 {
		t.Fatalf("Do: %v, want a size mismatch with Got 10", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 0 {
		t.Errorf("short transfer left %d files behind", len(ents))
	}
}

func TestReceiveRetry(t *testing.T) {
	v = t.Logf
	sdir, rdir := t.TempDir(), t.TempDir()
	mkfile(t, sdir, "late", 42)

	// Find a free port, then make the receiver dial it before
	// anything listens there.
	ln, port := listen(t)
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r := NewWork(Get, Receiver, "late", port, 42)
	r.Peer = "127.0.0.1"
	dst := &Worker{Dir: rdir, Backoff: func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }}
	errc := make(chan error, 1)
	go func() { errc <- dst.Do(ctx, r) }()

	time.Sleep(100 * time.Millisecond)
	s := NewWork(Get, Sender, "late", port, 42)
	if err := (&Worker{Dir: sdir}).Do(ctx, s); err != nil {
		t.Fatalf("send: %v != nil", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("receive: %v != nil", err)
	}
}

func TestCancel(t *testing.T) {
	v = t.Logf
	dir := t.TempDir()
	mkfile(t, dir, "f", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ln, port := listen(t)
	s := NewWork(Get, Sender, "f", port, 10)
	s.Listener = ln
	if err := (&Worker{Dir: dir}).Do(ctx, s); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("send with nobody connecting: %v is not %v", err, context.DeadlineExceeded)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r := NewWork(Get, Receiver, "f", port, 10)
	r.Peer = "127.0.0.1"
	wk := &Worker{Dir: dir, Backoff: func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }}
	if err := wk.Do(ctx, r); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("receive with nobody listening: %v is not %v", err, context.DeadlineExceeded)
	}
}

func TestRunLogs(t *testing.T) {
	v = t.Logf
	w := NewWork(Get, Role(7), "x", 0, 0)
	(&Worker{Log: &ulogtest.Logger{TB: t}}).Run(context.Background(), w)
	if err := (&Worker{}).Do(context.Background(), w); err == nil || !strings.Contains(err.Error(), "unknown role") {
		t.Errorf("Do with a bad role: %v does not contain %q", err, "unknown role")
	}
}
