// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ErrNotFound is returned by an Executor that can not find a command.
var ErrNotFound = errors.New("command not found")

// Executor runs external commands for a connection. Both stdout and
// stderr go to out, which is the control connection.
type Executor interface {
	Run(ctx context.Context, out io.Writer, dir, name string, args ...string) error
}

// Exec is the Executor that uses os/exec.
type Exec struct{}

var _ Executor = Exec{}

// Run implements Executor.
func (Exec) Run(ctx context.Context, out io.Writer, dir, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	cmd := command(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout, cmd.Stderr = out, out
	verbose("run %q in %q", cmd.Args, dir)
	err := cmd.Run()
	verbose("%q returns %v", cmd.Args, err)
	return err
}
