// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/u-root/sploit/session"
)

// MaxNameLen bounds file names carried by a Work.
const MaxNameLen = 255

// Op is the command that produced a Work.
type Op int

const (
	// Get moves a file from server to client.
	Get Op = iota + 1
	// Put moves a file from client to server.
	Put
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case Get:
		return "GET"
	case Put:
		return "PUT"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Role is what this end of the data connection does.
type Role int

const (
	// Sender listens on Port and writes Size bytes of Name.
	Sender Role = iota
	// Receiver dials Peer:Port and appends Size bytes to Name~.
	Receiver
)

// Work is one file transfer, consumed exactly once by a worker.
type Work struct {
	ID   uuid.UUID
	Op   Op
	Role Role
	Name string
	Port int
	Size int64
	// Peer is the host a Receiver dials.
	Peer string
	// Listener, if set, is the already bound listener for a Sender.
	// Otherwise the Sender binds Port itself.
	Listener net.Listener
	// Session is the server session that asked for the transfer.
	// It is nil on the client.
	Session *session.Session
}

// NewWork returns a Work for op on name. Names longer than MaxNameLen
// are truncated. Names are not otherwise checked.
func NewWork(op Op, role Role, name string, port int, size int64) *Work {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	return &Work{ID: uuid.New(), Op: op, Role: role, Name: name, Port: port, Size: size}
}

// String implements fmt.Stringer.
func (w *Work) String() string {
	return fmt.Sprintf("%s name: %s port: %d size: %d", w.Op, w.Name, w.Port, w.Size)
}
