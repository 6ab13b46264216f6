// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/u-root/sploit/session"
	"github.com/u-root/sploit/transfer"
)

// Replies other than the prompt.
const (
	BadUser      = "Not a valid user name.\n"
	BadPass      = "Invalid passwd.\n"
	Welcome      = "Welcome!\n"
	LoggedOut    = "Logged out...\n"
	GetUsage     = "Usage: get $FILENAME\n"
	GetNoFile    = "GET: No such file.\n"
	PutUsage     = "Usage: put $FILENAME $SIZE\n"
	PingUsage    = "Usage: ping $HOST\n"
	CmdNotFound  = "Error: command not found\n"
	getReplyFmt  = "get port: %d size: %d\n"
	putReplyFmt  = "put port: %d\n"
	getNoPort    = "GET: no data port.\n"
	putNoPort    = "PUT: no data port.\n"
	shuttingDown = "Server shutting down.\n"
	blankMessage = "\n"
)

func login(c *conn, cmd *Command) error {
	if len(cmd.Params) == 0 {
		return c.reply(blankMessage)
	}
	u, ok := c.s.Config.User(cmd.Params)
	if !ok {
		return c.reply(BadUser)
	}
	if c.pending != nil {
		c.s.logf("sploitd: %v: pending login of %q replaced by %q", c.ep, c.pending.User.Name, u.Name)
	}
	c.pending = session.New(u, c.ep.IP, c.ep.Port)
	return nil
}

func pass(c *conn, cmd *Command) error {
	if c.pending == nil || len(cmd.Params) == 0 {
		return c.reply(blankMessage)
	}
	if !c.pending.User.CheckPassword(cmd.Params) {
		return c.reply(BadPass)
	}
	c.pending.Flags &^= session.WaitPass
	c.s.Sessions.Commit(c.pending)
	verbose("%v: %v logged in", c.ep, c.pending)
	c.pending = nil
	return c.reply(Welcome)
}

func logout(c *conn, cmd *Command) error {
	if err := c.s.Sessions.Remove(c.ep.IP, c.ep.Port); err != nil {
		verbose("logout: %v", err)
	}
	return c.reply(LoggedOut)
}

func exit(c *conn, cmd *Command) error {
	c.s.logf("sploitd: %v: %s", c.ep, cmd.Raw)
	return nil
}

func whoami(c *conn, cmd *Command) error {
	s, ok := c.s.Sessions.Find(c.ep.IP, c.ep.Port)
	if !ok {
		return c.reply(blankMessage)
	}
	return c.reply(s.User.Name + "\n")
}

func w(c *conn, cmd *Command) error {
	var b strings.Builder
	for _, n := range c.s.Sessions.Users() {
		b.WriteString(n + "\n")
	}
	return c.reply(b.String())
}

func ping(c *conn, cmd *Command) error {
	f := strings.Fields(cmd.Params)
	if len(f) != 1 {
		return c.reply(PingUsage)
	}
	return c.exec("ping", f[0], "-c", "1")
}

func cd(c *conn, cmd *Command) error {
	// Each command runs in a fresh process, so there is nothing for
	// cd to change. Check the directory and report.
	dir := cmd.Params
	fi, err := os.Stat(c.s.path(dir))
	if err != nil {
		return c.reply(fmt.Sprintf("cd: %v\n", err))
	}
	if !fi.IsDir() {
		return c.reply(fmt.Sprintf("cd: %s: not a directory\n", dir))
	}
	return nil
}

func passthrough(c *conn, cmd *Command) error {
	c.s.logf("sploitd: %v: %s %s", c.ep, cmd.Name, cmd.Params)
	return c.exec(cmd.Name, strings.Fields(cmd.Params)...)
}

func (c *conn) exec(name string, args ...string) error {
	err := c.s.Exec.Run(c.ctx, c, c.s.Dir, name, args...)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return c.reply(CmdNotFound)
	default:
		// Nonzero exit is the command's business; its output
		// already went to the client.
		verbose("%v: %s: %v", c.ep, name, err)
	}
	return nil
}

// getListener binds the data port for a get. The configured port is
// tried first; if it is 0 or taken by another transfer, the kernel
// picks one.
func (s *Server) getListener() (net.Listener, int, error) {
	if p := s.Config.GetPort; p != 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(p)))
		if err == nil {
			return ln, p, nil
		}
		verbose("get port %d: %v, using any port", p, err)
	}
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, 0, err
	}
	return ln, ln.Addr().(*net.TCPAddr).Port, nil
}

// putPort is the port a client listens on for a put. It is only
// probed here; the client does the binding.
func (s *Server) putPort() (int, error) {
	if p := s.Config.PutPort; p != 0 {
		return p, nil
	}
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func get(c *conn, cmd *Command) error {
	f := strings.Fields(cmd.Params)
	if len(f) != 1 {
		return c.reply(GetUsage)
	}
	name := f[0]
	fi, err := os.Stat(c.s.path(name))
	if err != nil || !fi.Mode().IsRegular() {
		return c.reply(GetNoFile)
	}
	ln, port, err := c.s.getListener()
	if err != nil {
		c.s.logf("sploitd: %v: get %q: %v", c.ep, name, err)
		return c.reply(getNoPort)
	}
	wk := transfer.NewWork(transfer.Get, transfer.Sender, name, port, fi.Size())
	wk.Listener = ln
	wk.Session, _ = c.s.Sessions.Find(c.ep.IP, c.ep.Port)
	if err := c.s.queue.Enqueue(wk); err != nil {
		c.s.logf("sploitd: %v: get %q: %v", c.ep, name, err)
		return c.reply(shuttingDown)
	}
	verbose("%v: queued %v (%v)", c.ep, wk, wk.ID)
	return c.reply(fmt.Sprintf(getReplyFmt, port, fi.Size()))
}

func put(c *conn, cmd *Command) error {
	f := strings.Fields(cmd.Params)
	if len(f) != 2 {
		return c.reply(PutUsage)
	}
	size, err := strconv.ParseInt(f[1], 10, 64)
	if err != nil || size < 0 {
		return c.reply(PutUsage)
	}
	port, err := c.s.putPort()
	if err != nil {
		c.s.logf("sploitd: %v: put %q: %v", c.ep, f[0], err)
		return c.reply(putNoPort)
	}
	wk := transfer.NewWork(transfer.Put, transfer.Receiver, f[0], port, size)
	wk.Peer = c.ep.IP
	wk.Session, _ = c.s.Sessions.Find(c.ep.IP, c.ep.Port)
	if err := c.s.queue.Enqueue(wk); err != nil {
		c.s.logf("sploitd: %v: put %q: %v", c.ep, f[0], err)
		return c.reply(shuttingDown)
	}
	verbose("%v: queued %v (%v)", c.ep, wk, wk.ID)
	return c.reply(fmt.Sprintf(putReplyFmt, port))
}
