// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads sploitd configuration files.
//
// The file is a list of keyword value lines, in the same lexical
// form as ssh_config(5), which is how it is parsed:
//
//	# where the server chdirs to
//	base /srv/sploit
//	port 31337
//	user alice secret
//	alias ll ls -l
//	getport 31338
//	putport 31339
//
// port is required. Users and aliases must be unique.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	sshconfig "github.com/kevinburke/ssh_config"
	"github.com/u-root/sploit/session"
)

const (
	// DefaultGetPort is the data port offered for get.
	DefaultGetPort = 31338
	// DefaultPutPort is the data port offered for put.
	DefaultPutPort = 31339
	// MaxLen bounds names, passwords and alias fields.
	MaxLen = 256
)

// Alias maps a command name to the program that really runs,
// with parameters prepended to whatever the user typed.
type Alias struct {
	Name   string
	Cmd    string
	Params string
}

// Config is a parsed configuration file.
type Config struct {
	Port    int
	Base    string
	GetPort int
	PutPort int
	users   map[string]*session.User
	aliases map[string]Alias
}

// New returns an empty Config with default data ports.
func New() *Config {
	return &Config{
		GetPort: DefaultGetPort,
		PutPort: DefaultPutPort,
		users:   map[string]*session.User{},
		aliases: map[string]Alias{},
	}
}

// AddUser adds a user. Names must be unique.
func (c *Config) AddUser(name, password string) error {
	if _, ok := c.users[name]; ok {
		return fmt.Errorf("duplicate user %q", name)
	}
	c.users[name] = &session.User{Name: name, Password: password}
	return nil
}

// AddAlias adds an alias. Names must be unique.
func (c *Config) AddAlias(a Alias) error {
	if _, ok := c.aliases[a.Name]; ok {
		return fmt.Errorf("duplicate alias %q", a.Name)
	}
	c.aliases[a.Name] = a
	return nil
}

// User returns the user called name, if any.
func (c *Config) User(name string) (*session.User, bool) {
	u, ok := c.users[name]
	return u, ok
}

// Alias returns the alias called name, if any.
func (c *Config) Alias(name string) (Alias, bool) {
	a, ok := c.aliases[name]
	return a, ok
}

// Users returns all configured users, in no particular order.
func (c *Config) Users() []*session.User {
	u := make([]*session.User, 0, len(c.users))
	for _, x := range c.users {
		u = append(u, x)
	}
	return u
}

// Aliases returns all configured aliases, in no particular order.
func (c *Config) Aliases() []Alias {
	a := make([]Alias, 0, len(c.aliases))
	for _, x := range c.aliases {
		a = append(a, x)
	}
	return a
}

func parsePort(s string, zero bool) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 65535 || (p == 0 && !zero) {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}

func bound(s string) string {
	if len(s) >= MaxLen {
		return s[:MaxLen-1]
	}
	return s
}

// Parse reads a configuration from r. All bad lines are reported,
// not just the first.
func Parse(r io.Reader) (*Config, error) {
	f, err := sshconfig.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c := New()
	var errs error
	for _, h := range f.Hosts {
		for _, n := range h.Nodes {
			kv, ok := n.(*sshconfig.KV)
			if !ok {
				continue
			}
			if err := c.apply(kv.Key, strings.TrimSpace(kv.Value)); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("line %d: %q: %w", kv.Pos().Line, kv.String(), err))
			}
		}
	}
	if c.Port == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no listening port specified"))
	}
	if errs != nil {
		return nil, errs
	}
	return c, nil
}

func (c *Config) apply(key, val string) error {
	f := strings.Fields(val)
	switch strings.ToLower(key) {
	case "base":
		if len(f) != 1 {
			return fmt.Errorf("usage: base $DIR")
		}
		c.Base = f[0]
	case "port", "getport", "putport":
		if len(f) != 1 {
			return fmt.Errorf("usage: %s $PORT", key)
		}
		p, err := parsePort(f[0], key != "port")
		if err != nil {
			return err
		}
		switch strings.ToLower(key) {
		case "port":
			c.Port = p
		case "getport":
			c.GetPort = p
		case "putport":
			c.PutPort = p
		}
	case "user":
		if len(f) != 2 {
			return fmt.Errorf("usage: user $NAME $PASSWORD")
		}
		return c.AddUser(bound(f[0]), bound(f[1]))
	case "alias":
		if len(f) < 2 {
			return fmt.Errorf("usage: alias $NAME $CMD [$PARAMS]")
		}
		// Everything after the command is one parameter list.
		rest := strings.TrimSpace(strings.TrimPrefix(val, f[0]))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, f[1]))
		return c.AddAlias(Alias{Name: bound(f[0]), Cmd: bound(f[1]), Params: bound(rest)})
	default:
		v("config: ignoring %q", key)
	}
	return nil
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

var v = func(string, ...interface{}) {}

// SetVerbose sets the verbose printer for this package.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}
