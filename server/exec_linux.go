// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"os/exec"
	"syscall"
)

// command returns a Cmd that dies with sploitd. Commands run with
// the control connection as stdout, and a command left behind by a
// dead server would keep that connection open.
func command(ctx context.Context, n string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, n, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
	return cmd
}
