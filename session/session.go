// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// DefaultLifetime is how long a session lives before Sweep may drop it.
const DefaultLifetime = time.Hour

// Flags records the state of a session.
type Flags int

// WaitPass is set while a session waits for its password.
const WaitPass Flags = 0x1

// ErrNoSession is returned when no session matches an endpoint.
var ErrNoSession = errors.New("no such session")

var v = func(string, ...interface{}) {}

// SetVerbose sets the verbose printer for this package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

func verbose(f string, a ...interface{}) {
	v("session:"+f, a...)
}

// Endpoint is the remote address of a control connection.
type Endpoint struct {
	IP   string
	Port int
}

// EndpointOf returns the Endpoint for a net.Addr. Addresses that
// carry no port, e.g. unix sockets, are reported as loopback
// with port 0.
func EndpointOf(a net.Addr) Endpoint {
	if a == nil {
		return Endpoint{IP: "127.0.0.1"}
	}
	switch a := a.(type) {
	case *net.TCPAddr:
		return Endpoint{IP: a.IP.String(), Port: a.Port}
	case *net.UnixAddr:
		return Endpoint{IP: "127.0.0.1"}
	}
	h, p, err := net.SplitHostPort(a.String())
	if err != nil {
		return Endpoint{IP: a.String()}
	}
	port, _ := strconv.Atoi(p)
	return Endpoint{IP: h, Port: port}
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// Session is one login of one User from one Endpoint.
type Session struct {
	User *User
	Endpoint
	Flags   Flags
	Created time.Time
	Expires time.Time
}

// New returns a pending Session for u at ip:port. It is not
// inserted in any Store; see Store.Commit.
func New(u *User, ip string, port int) *Session {
	now := time.Now()
	return &Session{
		User:     u,
		Endpoint: Endpoint{IP: ip, Port: port},
		Flags:    WaitPass,
		Created:  now,
		Expires:  now.Add(DefaultLifetime),
	}
}

// Pending reports whether s still waits for a password.
func (s *Session) Pending() bool {
	return s.Flags&WaitPass != 0
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	state := "active"
	if s.Pending() {
		state = "pending"
	}
	return fmt.Sprintf("%s@%v(%s)", s.User.Name, s.Endpoint, state)
}

// Store is the table of committed sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[Endpoint]*Session
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{sessions: map[Endpoint]*Session{}}
}

// Commit inserts s, replacing any session already held for the
// same endpoint.
func (st *Store) Commit(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if old, ok := st.sessions[s.Endpoint]; ok {
		verbose("replacing %v with %v", old, s)
	}
	st.sessions[s.Endpoint] = s
}

// Find returns the session for ip:port, pending or not.
func (st *Store) Find(ip string, port int) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[Endpoint{IP: ip, Port: port}]
	return s, ok
}

// Active reports whether ip:port holds a session that is no
// longer waiting for its password.
func (st *Store) Active(ip string, port int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[Endpoint{IP: ip, Port: port}]
	return ok && !s.Pending()
}

// Remove drops the session for ip:port. It returns ErrNoSession if
// there is none.
func (st *Store) Remove(ip string, port int) error {
	e := Endpoint{IP: ip, Port: port}
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[e]; !ok {
		return fmt.Errorf("remove %v: %w", e, ErrNoSession)
	}
	delete(st.sessions, e)
	return nil
}

// Users returns the user names of all active sessions, sorted.
// A user logged in twice is listed twice.
func (st *Store) Users() []string {
	st.mu.Lock()
	names := make([]string, 0, len(st.sessions))
	for _, s := range st.sessions {
		if !s.Pending() {
			names = append(names, s.User.Name)
		}
	}
	st.mu.Unlock()
	slices.Sort(names)
	return names
}

// Len returns the number of sessions held.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep removes every session that expired before now and returns
// how many were removed.
func (st *Store) Sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	var n int
	for e, s := range st.sessions {
		if now.After(s.Expires) {
			verbose("expire %v", s)
			delete(st.sessions, e)
			n++
		}
	}
	return n
}
