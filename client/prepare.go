// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/u-root/sploit/transfer"
)

// prepare checks get and put before they are sent and returns the
// Work a matching reply will start. Other commands return nil.
func (c *Client) prepare(line string) (*transfer.Work, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil, nil
	}
	switch f[0] {
	case "get":
		if len(f) < 2 {
			return nil, fmt.Errorf("%w: usage: get $FILENAME", ErrRejected)
		}
		return transfer.NewWork(transfer.Get, transfer.Receiver, f[1], 0, 0), nil
	case "put":
		if len(f) < 2 {
			return nil, fmt.Errorf("%w: usage: put $FILENAME $SIZE", ErrRejected)
		}
		fi, err := os.Stat(c.path(f[1]))
		if err != nil || !fi.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: no such file: %s", ErrRejected, f[1])
		}
		if len(f) < 3 {
			return nil, fmt.Errorf("%w: usage: put $FILENAME $SIZE", ErrRejected)
		}
		size, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: usage: put $FILENAME $SIZE", ErrRejected)
		}
		if size > fi.Size() {
			return nil, fmt.Errorf("%w: size: %d fsize: %d", ErrRejected, size, fi.Size())
		}
		return transfer.NewWork(transfer.Put, transfer.Sender, f[1], 0, size), nil
	}
	return nil, nil
}

// parseReply finds a transfer line at the start of a reply. ok is
// false if there is none.
func parseReply(r string) (op transfer.Op, port int, size int64, ok bool, err error) {
	line, _, _ := strings.Cut(r, "\n")
	switch {
	case strings.HasPrefix(line, "get "):
		op = transfer.Get
		_, err = fmt.Sscanf(line, "get port: %d size: %d", &port, &size)
	case strings.HasPrefix(line, "put "):
		op = transfer.Put
		_, err = fmt.Sscanf(line, "put port: %d", &port)
	default:
		return 0, 0, 0, false, nil
	}
	if err != nil {
		return op, 0, 0, true, &ProtocolError{Reply: line, Err: err}
	}
	if port <= 0 || port > 65535 || size < 0 {
		return op, 0, 0, true, &ProtocolError{Reply: line, Err: fmt.Errorf("port %d size %d out of range", port, size)}
	}
	return op, port, size, true, nil
}

// start queues w if reply is the transfer reply for it. w is dropped
// in every other case.
func (c *Client) start(w *transfer.Work, reply string) error {
	op, port, size, ok, err := parseReply(reply)
	if !ok {
		return nil
	}
	if w == nil {
		// Command output can look like anything.
		verbose("transfer reply %q with nothing pending", reply)
		return nil
	}
	if err != nil {
		return err
	}
	if w.Op != op {
		line, _, _ := strings.Cut(reply, "\n")
		return &ProtocolError{Reply: line, Want: w.Op, Got: op}
	}
	w.Port = port
	w.Peer = c.peer
	if op == transfer.Get {
		w.Size = size
	} else {
		// Listen now, so the server's first dial finds us.
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			return fmt.Errorf("%w: put %s: %w", ErrNotStarted, w.Name, err)
		}
		w.Listener = ln
	}
	verbose("queue %v", w)
	if err := c.queue.Enqueue(w); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNotStarted, op, w.Name, err)
	}
	return nil
}
