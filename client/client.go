// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/u-root/sploit/transfer"
	"github.com/u-root/u-root/pkg/ulog"
)

const (
	// Prompt ends every reply from the server.
	Prompt = "$ "
	// DefaultPort is the default sploitd port.
	DefaultPort = "31337"

	defaultTimeOut = 10 * time.Second
)

var (
	// ErrRejected is returned for commands refused before sending.
	ErrRejected = errors.New("rejected")
	// ErrExit is returned once exit has been sent.
	ErrExit = errors.New("exit")
	// ErrNotConnected is returned by Do before Dial.
	ErrNotConnected = errors.New("not connected")
	// ErrNotStarted is returned when a transfer the server agreed to
	// could not be started here. The session is still usable.
	ErrNotStarted = errors.New("transfer not started")
)

// V allows debug printing.
var V = func(string, ...interface{}) {}

func verbose(f string, a ...interface{}) {
	V("sploit:"+f, a...)
}

// ProtocolError is a transfer reply that does not fit the command
// that was sent.
type ProtocolError struct {
	Reply string
	Want  transfer.Op
	Got   transfer.Op
	Err   error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad transfer reply %q: %v", e.Reply, e.Err)
	}
	return fmt.Sprintf("reply %q is for %v, sent %v", e.Reply, e.Got, e.Want)
}

// Unwrap returns the parse error, if any.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Client is a sploit client: one control connection plus the
// transfers it starts.
type Client struct {
	Host string
	Port string
	// Dir is where local files are read and received files written.
	Dir string
	// Timeout bounds the dial and each reply.
	Timeout time.Duration
	Log     ulog.Logger
	// Backoff, if set, is the retry policy for data connections.
	Backoff func() backoff.BackOff

	conn    net.Conn
	r       *bufio.Reader
	peer    string
	queue   *transfer.Queue
	closers []func() error
}

// New returns a Client for host and port. It does not connect; see
// Dial.
func New(host, port string) *Client {
	if len(port) == 0 {
		port = DefaultPort
	}
	return &Client{
		Host:    host,
		Port:    port,
		Timeout: defaultTimeOut,
		Log:     ulog.Log,
		queue:   transfer.NewQueue(),
	}
}

// WithDir sets the local directory.
func (c *Client) WithDir(dir string) *Client {
	c.Dir = dir
	return c
}

// WithTimeout sets the dial and reply timeout. 0 means none.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.Timeout = d
	return c
}

// WithLog sets the logger for failed transfers.
func (c *Client) WithLog(l ulog.Logger) *Client {
	c.Log = l
	return c
}

// WithBackoff sets the retry policy for data connections.
func (c *Client) WithBackoff(f func() backoff.BackOff) *Client {
	c.Backoff = f
	return c
}

func (c *Client) path(name string) string {
	if len(c.Dir) == 0 || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

// Dial connects to the server and starts the transfer queue.
func (c *Client) Dial(ctx context.Context) error {
	addr := net.JoinHostPort(c.Host, c.Port)
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	verbose("Dial(%q): (%v, %v)", addr, conn, err)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c.conn, c.r = conn, bufio.NewReader(conn)
	c.closers = append(c.closers, conn.Close)

	// Data connections go to the address we actually reached,
	// as the server does for us.
	c.peer = c.Host
	if a, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		c.peer = a.IP.String()
	}

	qctx, cancel := context.WithCancel(context.Background())
	w := &transfer.Worker{Dir: c.Dir, Log: c.Log, Backoff: c.Backoff}
	done := make(chan struct{})
	go func() {
		c.queue.Run(qctx, w.Run)
		close(done)
	}()
	c.closers = append(c.closers, func() error {
		cancel()
		<-done
		return c.queue.Wait(context.Background())
	})
	return nil
}

// Do sends one command line and returns the server's reply, prompt
// included. get and put replies start a transfer in the background;
// see Wait. Commands refused locally return an error wrapping
// ErrRejected and are not sent. exit is sent and returns ErrExit.
// A transfer that could not be started returns the reply and an error
// wrapping ErrNotStarted.
func (c *Client) Do(line string) (string, error) {
	if c.conn == nil {
		return "", ErrNotConnected
	}
	line = strings.TrimRight(line, "\r\n")
	w, err := c.prepare(line)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return "", err
	}
	if isExit(line) {
		return "", ErrExit
	}
	r, err := c.reply()
	if err != nil {
		return r, err
	}
	return r, c.start(w, r)
}

func isExit(line string) bool {
	f := strings.Fields(line)
	return len(f) > 0 && f[0] == "exit"
}

// reply reads up to and including the prompt.
func (c *Client) reply() (string, error) {
	if c.Timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.Timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	var b strings.Builder
	for !strings.HasSuffix(b.String(), Prompt) {
		r, err := c.r.ReadByte()
		if err != nil {
			return b.String(), err
		}
		if r != 0 {
			b.WriteByte(r)
		}
	}
	return b.String(), nil
}

// Wait waits for all transfers started so far.
func (c *Client) Wait(ctx context.Context) error {
	return c.queue.Wait(ctx)
}

// Close hangs up and cancels any transfer still running.
func (c *Client) Close() error {
	var err error
	for _, f := range c.closers {
		if e := f(); e != nil {
			err = multierror.Append(err, e)
		}
	}
	c.closers = nil
	return err
}
