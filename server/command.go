// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"fmt"
	"strings"
)

// MaxLine bounds a control line. Longer lines are truncated.
const MaxLine = 255

// Class says whether a command needs an active session.
type Class int

const (
	// Empty lines only get a prompt.
	Empty Class = iota
	// Login starts authentication.
	Login
	// Pass finishes authentication.
	Pass
	// Ping is allowed without a session.
	Ping
	// RequiresSession is everything else.
	RequiresSession
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case Empty:
		return "empty"
	case Login:
		return "login"
	case Pass:
		return "pass"
	case Ping:
		return "ping"
	case RequiresSession:
		return "session"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

type handler func(c *conn, cmd *Command) error

// Command is one parsed control line. It lives for one dispatch.
type Command struct {
	// Raw is the line as received, less its terminator.
	Raw string
	// Name is the first word, after alias expansion.
	Name string
	// Params is the rest of the line. Handlers split it themselves.
	Params string
	Class  Class
	run    handler
}

type builtin struct {
	class Class
	run   handler
}

var builtins = map[string]builtin{
	"login":  {Login, login},
	"pass":   {Pass, pass},
	"ping":   {Ping, ping},
	"logout": {RequiresSession, logout},
	"exit":   {RequiresSession, exit},
	"get":    {RequiresSession, get},
	"put":    {RequiresSession, put},
	"cd":     {RequiresSession, cd},
	"w":      {RequiresSession, w},
	"whoami": {RequiresSession, whoami},
}

func clean(line string) string {
	if len(line) > MaxLine {
		line = line[:MaxLine]
	}
	return strings.TrimRight(line, "\r\n\x00")
}

// Parse splits a control line into a command name and its
// parameters. It does not look the name up; see Server.Resolve.
func Parse(line string) *Command {
	raw := clean(line)
	name, params, _ := strings.Cut(strings.TrimLeft(raw, " \t"), " ")
	return &Command{Raw: raw, Name: name, Params: strings.TrimSpace(params)}
}
