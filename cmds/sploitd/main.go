// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// sploitd serves sploit sessions. It reads a configuration file,
// changes to its base directory and listens on its port.
//
// Synopsis:
//
//	sploitd [OPTIONS]
//
// Options:
//
//	-c file:  configuration file (default ./sploit.conf)
//	-d:       enable debug prints
//	-dump:    append the log to a file in the temp dir
//	-dnssd:   advertise the server with DNS-SD
//	-expire:  how often expired sessions are swept
//	-q:       do not print the configuration at startup
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/u-root/sploit/config"
	"github.com/u-root/sploit/ds"
	"github.com/u-root/sploit/server"
	"github.com/u-root/sploit/session"
	"github.com/u-root/sploit/transfer"
	"github.com/u-root/u-root/pkg/ulog"
)

var (
	conf   = flag.String("c", "./sploit.conf", "configuration file")
	debug  = flag.Bool("d", false, "enable debug prints")
	dump   = flag.Bool("dump", false, "append the log to $TMPDIR/sploitd.log")
	expire = flag.Duration("expire", time.Minute, "how often expired sessions are swept; 0 disables")
	quiet  = flag.Bool("q", false, "do not print the configuration at startup")

	dsEnabled   = flag.Bool("dnssd", false, "advertise service using DNSSD")
	dsInstance  = flag.String("dsInstance", "", "DNSSD instance name")
	dsDomain    = flag.String("dsDomain", "local", "DNSSD domain")
	dsService   = flag.String("dsService", ds.Service, "DNSSD Service Type")
	dsInterface = flag.String("dsInterface", "", "DNSSD Interface")
	dsTxtStr    = flag.String("dsTxt", "", "DNSSD key-value pair string parameterizing advertisement")

	// v allows debug printing.
	// Do not call it directly, call verbose instead.
	v = func(string, ...interface{}) {}
)

func verbose(f string, a ...interface{}) {
	v("SPLOITD:"+f, a...)
}

func setup() (io.Closer, error) {
	var c io.Closer
	if *dump {
		f, err := os.OpenFile(filepath.Join(os.TempDir(), "sploitd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		log.SetOutput(f)
		ulog.Log = log.New(f, "", log.LstdFlags)
		c = f
	}
	if *debug {
		v = log.Printf
		server.SetVerbose(log.Printf)
		session.SetVerbose(log.Printf)
		transfer.SetVerbose(log.Printf)
		config.SetVerbose(log.Printf)
		ds.Verbose(log.Printf)
	}
	return c, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*conf)
	if err != nil {
		return err
	}
	if len(cfg.Base) > 0 {
		if err := os.Chdir(cfg.Base); err != nil {
			return fmt.Errorf("base %s: %w", cfg.Base, err)
		}
	}
	if !*quiet {
		show(os.Stdout, cfg)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Port)))
	if err != nil {
		return err
	}
	s := server.New(cfg).WithDir("")

	if *dsEnabled {
		txt := ds.ParseKv(*dsTxtStr)
		verbose("Advertising w/dnssd %q", txt)
		if err := ds.Register(*dsInstance, *dsDomain, *dsService, *dsInterface, cfg.Port, txt); err != nil {
			ln.Close()
			return fmt.Errorf("could not advertise with dns-sd: %w", err)
		}
		defer ds.Unregister()
		s.WithTenant(ds.Tenant)
	}

	if *expire > 0 {
		go sweep(ctx, s.Sessions, *expire)
	}

	log.Printf("SPLOITD:listening on %v", ln.Addr())
	err = s.Serve(ctx, ln)
	if cerr := s.Close(); cerr != nil {
		verbose("Close: %v", cerr)
	}
	if errors.Is(err, server.ErrServerClosed) {
		return nil
	}
	return err
}

func sweep(ctx context.Context, st *session.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := st.Sweep(now); n > 0 {
				verbose("expired %d sessions", n)
			}
		}
	}
}

func main() {
	flag.Parse()
	c, err := setup()
	if err != nil {
		log.Fatal(err)
	}
	if c != nil {
		defer c.Close()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Fatalf("SPLOITD:%v", err)
	}
}
