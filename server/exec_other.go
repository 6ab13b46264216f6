// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package server

import (
	"context"
	"os/exec"
)

func command(ctx context.Context, n string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, n, args...)
}
