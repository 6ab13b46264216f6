// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/u-root/u-root/pkg/ulog"
)

// RetryInterval is how often a Receiver redials a peer that is not
// listening yet.
const RetryInterval = time.Second

// Suffix is appended to the name of every received file.
const Suffix = "~"

var v = func(string, ...interface{}) {}

// SetVerbose sets the verbose printer for this package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Worker runs Works. The zero value is usable: files are relative
// to the current directory, failures are logged to ulog.Log, and
// receivers retry forever.
type Worker struct {
	// Dir is where relative file names are resolved.
	Dir string
	// Log gets one line per failed transfer.
	Log ulog.Logger
	// Backoff returns the retry policy for dialing. The default
	// retries every RetryInterval with no limit; bound it with
	// the context passed to Do.
	Backoff func() backoff.BackOff
}

func (wk *Worker) logf(f string, a ...interface{}) {
	if wk.Log == nil {
		ulog.Log.Printf(f, a...)
		return
	}
	wk.Log.Printf(f, a...)
}

func (wk *Worker) path(name string) string {
	if len(wk.Dir) == 0 || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(wk.Dir, name)
}

func (wk *Worker) backoff() backoff.BackOff {
	if wk.Backoff != nil {
		return wk.Backoff()
	}
	return backoff.NewConstantBackOff(RetryInterval)
}

// Run does w and logs any failure. It has the signature Queue.Run
// wants.
func (wk *Worker) Run(ctx context.Context, w *Work) {
	if err := wk.Do(ctx, w); err != nil {
		wk.logf("transfer %v (%v): %v", w.ID, w, err)
		return
	}
	v("transfer: %v done", w)
}

// Do moves the bytes described by w, in the role w names.
func (wk *Worker) Do(ctx context.Context, w *Work) error {
	switch w.Role {
	case Sender:
		return wk.send(ctx, w)
	case Receiver:
		return wk.receive(ctx, w)
	}
	return fmt.Errorf("%v: unknown role %d", w, w.Role)
}

// closeOnDone closes c when ctx is done, which is the only way to
// unblock an Accept. The returned func stops the watch.
func closeOnDone(ctx context.Context, c io.Closer) func() bool {
	return context.AfterFunc(ctx, func() { c.Close() })
}

func (wk *Worker) send(ctx context.Context, w *Work) error {
	ln := w.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(w.Port))); err != nil {
			return fmt.Errorf("listen on %d: %w", w.Port, err)
		}
	}
	defer ln.Close()

	b, unmap, err := mapFile(wk.path(w.Name), w.Size)
	if err != nil {
		return err
	}
	defer unmap()

	v("transfer: %v listening on %v", w.ID, ln.Addr())
	stop := closeOnDone(ctx, ln)
	c, err := ln.Accept()
	stop()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("accept: %w", ctx.Err())
		}
		return fmt.Errorf("accept: %w", err)
	}
	defer c.Close()

	stop = closeOnDone(ctx, c)
	defer stop()
	n, err := c.Write(b)
	if int64(n) != w.Size || err != nil {
		return &SizeMismatchError{Op: "send", Name: w.Name, Want: w.Size, Got: int64(n), Err: err}
	}
	return nil
}

func (wk *Worker) dial(ctx context.Context, addr string) (net.Conn, error) {
	var (
		c net.Conn
		d net.Dialer
	)
	op := func() error {
		var err error
		c, err = d.DialContext(ctx, "tcp", addr)
		return err
	}
	notify := func(err error, wait time.Duration) {
		v("transfer: dial %s: %v, retry in %v", addr, err, wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(wk.backoff(), ctx), notify); err != nil {
		return nil, err
	}
	return c, nil
}

func (wk *Worker) receive(ctx context.Context, w *Work) error {
	addr := net.JoinHostPort(w.Peer, strconv.Itoa(w.Port))
	v("transfer: %v connect to %s", w.ID, addr)
	c, err := wk.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer c.Close()
	stop := closeOnDone(ctx, c)
	defer stop()

	// Bytes land in a temp file first, so a short transfer leaves
	// nothing behind.
	name := wk.path(w.Name) + Suffix
	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.CopyN(tmp, c, w.Size)
	if n != w.Size {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return &SizeMismatchError{Op: "receive", Name: w.Name, Want: w.Size, Got: n, Err: err}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	// Received files never overwrite: repeated transfers append.
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, tmp); err != nil {
		f.Close()
		return fmt.Errorf("write %q: %w", name, err)
	}
	return f.Close()
}
