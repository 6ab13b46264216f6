// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session is for managing sploit sessions, i.e. the record
// that a control connection has logged in.
//
// A session is keyed by the remote endpoint of the control connection,
// its IP address and source port. No token is ever issued: the
// endpoint is the only identity the server has. A session starts out
// pending, created by a login command, and becomes active once the
// matching password arrives. Only active sessions may run commands
// other than login, pass and ping.
//
// The Store holds all committed sessions behind a single mutex. All
// critical sections are short and never span I/O.
//
// Each session records an expiry time, one hour after creation. Expiry
// is only enforced when somebody calls Sweep; daemons that want it
// run Sweep from a ticker.
package session
