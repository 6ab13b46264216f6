// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transfer moves file contents over sploit data connections.
//
// A get or put command on the control connection produces a Work,
// which describes one file, a port, and a size. Works go into a Queue.
// A Queue is drained by one goroutine, which starts one more goroutine
// per Work; that goroutine is the worker for the transfer.
//
// There are two roles. A Sender listens on the port, accepts exactly one
// connection, and writes the file, which it maps into memory. A Receiver
// dials the peer, retrying once a second until it gets through, reads
// exactly Size bytes, and appends them to the file name with a ~ added.
// The server sends for get and receives for put; the client does the
// opposite. There is no framing, checksum, or end marker on the data
// connection: both ends rely on the size agreed on the control
// connection.
//
// A transfer that moves fewer than Size bytes fails with a
// SizeMismatchError. Failures are local to the worker. Nothing is
// reported to the peer over the control connection.
package transfer
