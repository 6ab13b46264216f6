// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/u-root/sploit/config"
)

// show prints the configuration sploitd is about to serve.
// Passwords are not printed.
func show(w io.Writer, cfg *config.Config) {
	t := tablewriter.NewWriter(w)
	t.Options(tablewriter.WithRendition(tw.Rendition{Borders: tw.Border{Left: tw.Pending, Right: tw.Pending, Top: tw.Pending, Bottom: tw.Pending}}))
	t.Header("Key", "Value")
	t.Append([]string{"base", cfg.Base})
	t.Append([]string{"port", strconv.Itoa(cfg.Port)})
	t.Append([]string{"getport", strconv.Itoa(cfg.GetPort)})
	t.Append([]string{"putport", strconv.Itoa(cfg.PutPort)})
	for _, u := range cfg.Users() {
		t.Append([]string{"user", u.Name})
	}
	for _, a := range cfg.Aliases() {
		t.Append([]string{"alias", strings.TrimSpace(strings.Join([]string{a.Name, "=", a.Cmd, a.Params}, " "))})
	}
	t.Render()
}
