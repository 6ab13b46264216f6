// Copyright 2018-2019 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	config "github.com/kevinburke/ssh_config"
)

// DefaultHostsFile names sploit servers, in ssh_config(5) form:
//
//	Host lab
//		HostName 10.0.0.5
//		Port 31337
var DefaultHostsFile = filepath.Join(os.Getenv("HOME"), ".sploit", "config")

// Hosts maps short host names to addresses.
type Hosts struct {
	cfg *config.Config
}

// LoadHosts reads a hosts file. A missing file is an empty Hosts.
func LoadHosts(path string) (*Hosts, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Hosts{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := config.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Hosts{cfg: cfg}, nil
}

func (h *Hosts) get(host, key string) string {
	if h == nil || h.cfg == nil {
		return ""
	}
	s, err := h.cfg.Get(host, key)
	if err != nil {
		V("%s %s: %v", host, key, err)
		return ""
	}
	return s
}

// HostName returns the HostName for host, or host if there is none.
func (h *Hosts) HostName(host string) string {
	if n := h.get(host, "HostName"); len(n) != 0 {
		return n
	}
	return host
}

// Port picks the port for host: port if set, else the one in the
// hosts file, else DefaultPort. It verifies that the port fits in
// 16 bits.
func (h *Hosts) Port(host, port string) (string, error) {
	p := port
	if len(p) == 0 {
		p = h.get(host, "Port")
	}
	if len(p) == 0 {
		p = DefaultPort
	}
	if _, err := strconv.ParseUint(p, 10, 16); err != nil {
		return "", fmt.Errorf("port %q: %w", p, err)
	}
	V("Port(%q, %q): %q", host, port, p)
	return p, nil
}
