// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/u-root/sploit/config"
	"github.com/u-root/sploit/session"
	"github.com/u-root/sploit/transfer"
	"github.com/u-root/u-root/pkg/ulog"
)

// Prompt ends every reply.
const Prompt = "$ "

// NotLoggedIn is the reply to a command that needs a session when
// there is none.
const NotLoggedIn = "\n" +
	"**** You need to login first!\n" +
	"****                         \n" +
	"****     login $USERNAME     \n" +
	"****     pass $PASSWORD      \n" +
	"****                         \n"

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("sploitd: server closed")

var v = func(string, ...interface{}) {}

// SetVerbose sets the verbose printer for this package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

func verbose(f string, a ...interface{}) {
	v("sploitd:"+f, a...)
}

// Server is a sploitd. As in http.Server, the exported fields may be
// set directly, but not once Serve has been called.
type Server struct {
	Config   *config.Config
	Sessions *session.Store
	Exec     Executor
	Log      ulog.Logger
	// Dir is where files are looked for and commands run.
	Dir string
	// Tenant, if set, is called with 1 when a connection arrives
	// and -1 when it leaves.
	Tenant func(int)

	queue *transfer.Queue

	mu      sync.Mutex
	closed  bool
	cancels []context.CancelFunc
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// New returns a Server for cfg. Files are relative to cfg.Base.
func New(cfg *config.Config) *Server {
	return &Server{
		Config:   cfg,
		Sessions: session.NewStore(),
		Exec:     Exec{},
		Log:      ulog.Log,
		Dir:      cfg.Base,
		queue:    transfer.NewQueue(),
		conns:    map[net.Conn]struct{}{},
	}
}

// WithLog sets the logger for operator messages.
func (s *Server) WithLog(l ulog.Logger) *Server {
	s.Log = l
	return s
}

// WithExecutor sets the Executor for ping and unknown commands.
func (s *Server) WithExecutor(e Executor) *Server {
	s.Exec = e
	return s
}

// WithDir sets the directory files are relative to.
func (s *Server) WithDir(dir string) *Server {
	s.Dir = dir
	return s
}

// WithTenant sets the connection counting hook.
func (s *Server) WithTenant(f func(int)) *Server {
	s.Tenant = f
	return s
}

func (s *Server) logf(f string, a ...interface{}) {
	if s.Log == nil {
		ulog.Log.Printf(f, a...)
		return
	}
	s.Log.Printf(f, a...)
}

func (s *Server) path(name string) string {
	if len(s.Dir) == 0 || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.Dir, name)
}

func (s *Server) tenant(d int) {
	if s.Tenant != nil {
		s.Tenant(d)
	}
}

// Queued returns the number of transfers waiting for a worker.
func (s *Server) Queued() int {
	return s.queue.Len()
}

// Resolve expands aliases in cmd and finds its handler and Class.
// Names that are not built in run through the Executor.
func (s *Server) Resolve(cmd *Command) {
	if cmd.Name == "" {
		cmd.Class = Empty
		return
	}
	if a, ok := s.Config.Alias(cmd.Name); ok {
		verbose("alias %q -> %q %q", cmd.Name, a.Cmd, a.Params)
		cmd.Name = a.Cmd
		if len(a.Params) > 0 {
			cmd.Params = joinParams(a.Params, cmd.Params)
		}
	}
	b, ok := builtins[cmd.Name]
	if !ok {
		cmd.Class, cmd.run = RequiresSession, passthrough
		return
	}
	cmd.Class, cmd.run = b.class, b.run
}

func joinParams(a, b string) string {
	if len(b) == 0 {
		return a
	}
	return a + " " + b
}

// Serve accepts control connections on ln until Close is called or
// ctx is done, and runs the transfer queue in the background.
// Each connection is served on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	worker := &transfer.Worker{Dir: s.Dir, Log: s.Log}
	go s.queue.Run(ctx, worker.Run)
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	verbose("listening on %v", ln.Addr())
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ErrServerClosed
			}
			return err
		}
		if !s.track(c) {
			c.Close()
			return ErrServerClosed
		}
		go s.handle(ctx, c)
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Close stops all listeners, hangs up all control connections,
// cancels transfers in flight and waits for all of it to finish.
func (s *Server) Close() error {
	var errs error
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	for c := range s.conns {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, err)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := s.queue.Wait(context.Background()); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}

// conn is the state of one control connection.
type conn struct {
	net.Conn
	s   *Server
	ctx context.Context
	ep  session.Endpoint
	// pending is the session waiting for its password.
	pending *session.Session
}

func (s *Server) handle(ctx context.Context, nc net.Conn) {
	c := &conn{Conn: nc, s: s, ctx: ctx, ep: session.EndpointOf(nc.RemoteAddr())}
	s.tenant(1)
	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer func() {
		stop()
		nc.Close()
		if err := s.Sessions.Remove(c.ep.IP, c.ep.Port); err == nil {
			verbose("%v: hung up, session removed", c.ep)
		}
		s.tenant(-1)
		s.untrack(nc)
	}()

	verbose("%v: connected", c.ep)
	sc := bufio.NewScanner(nc)
	for sc.Scan() {
		if err := c.run(sc.Text()); err != nil {
			verbose("%v: %v", c.ep, err)
			return
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logf("sploitd: %v: %v", c.ep, err)
	}
}

// run runs one line and writes the prompt. Errors are write errors,
// i.e. the connection is gone.
func (c *conn) run(line string) error {
	cmd := Parse(line)
	c.s.Resolve(cmd)
	verbose("%v: %q class %v", c.ep, cmd.Raw, cmd.Class)
	var err error
	switch cmd.Class {
	case Empty:
	case Login, Pass, Ping:
		err = cmd.run(c, cmd)
	default:
		if c.s.Sessions.Active(c.ep.IP, c.ep.Port) {
			err = cmd.run(c, cmd)
		} else {
			err = c.reply(NotLoggedIn)
		}
	}
	if err != nil {
		return err
	}
	return c.reply(Prompt)
}

func (c *conn) reply(s string) error {
	_, err := io.WriteString(c, s)
	return err
}
