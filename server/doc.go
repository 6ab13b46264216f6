// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is for building sploit servers, a.k.a. sploitd.
//
// A sploitd reads newline terminated commands from a control
// connection and writes back a reply, always ending in the prompt
// "$ ". Commands other than login, pass and ping need an active
// session, which is created by login and activated by pass. The
// session belongs to the remote address of the control connection.
//
// File transfers do not use the control connection. get and put
// reply with a data port, and a transfer worker on each side moves
// exactly the negotiated number of bytes over a connection of its
// own. For get the server listens and sends; for put the client
// listens and the server connects and receives. Received files are
// never overwritten: the bytes are appended to the name with a ~
// suffix.
//
// The protocol is cleartext, passwords included. Run sploitd only
// where that is acceptable.
//
// The basic flow of setting up a server is the usual one: a call to
// New with a parsed config.Config, a call to net.Listen, and a call
// to Serve with the listener. See TestEndToEnd for an example.
package server
