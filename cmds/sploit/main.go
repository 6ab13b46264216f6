// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// sploit is the client for sploitd.
//
// Synopsis:
//
//	sploit [OPTIONS] host [port [infile outfile]]
//
// With infile and outfile, commands are read from infile and replies
// written to outfile. Otherwise sploit is interactive when stdin is a
// terminal and reads lines from stdin when it is not.
//
// host may name an entry in the hosts file, or be a dnssd: URI, e.g.
// dnssd:?arch=arm64, to pick any sploitd on the local network.
//
// Options:
//
//	-d:        enable debug prints
//	-dialtimeout: how long to wait for the connection
//	-hosts:    hosts file, in ssh_config(5) form
//	-timeout:  how long to wait for a reply before hanging up; 0, the
//	           default, waits forever, as slow commands such as ping
//	           have no reply until they finish
//	-wait:     how long to wait for transfers at exit; 0 waits forever
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/u-root/sploit/client"
	"github.com/u-root/sploit/ds"
	"github.com/u-root/sploit/transfer"
	"golang.org/x/term"
)

var (
	debug     = flag.Bool("d", false, "enable debug prints")
	hostsFile = flag.String("hosts", client.DefaultHostsFile, "hosts file")
	timeout   = flag.Duration("timeout", 0, "how long to wait for a reply before hanging up; 0 waits forever")
	dialWait  = flag.Duration("dialtimeout", 10*time.Second, "how long to wait for the connection")
	wait      = flag.Duration("wait", 0, "how long to wait for transfers at exit; 0 waits forever")

	// v allows debug printing.
	// Do not call it directly, call verbose instead.
	v = func(string, ...interface{}) {}
)

func verbose(f string, a ...interface{}) {
	v("\r\nSPLOIT:"+f+"\r\n", a...)
}

func usage() {
	var b strings.Builder
	flag.CommandLine.SetOutput(&b)
	flag.PrintDefaults()
	log.Fatalf("Usage: sploit [options] host [port [infile outfile]]\n%v", b.String())
}

// resolve turns host and port as given into an address to dial.
func resolve(host, port, hostsFile string) (string, string, error) {
	if strings.HasPrefix(host, ds.DsDefault) {
		q, err := ds.Parse(host)
		if err != nil {
			return "", "", err
		}
		h, p, err := ds.Lookup(q)
		if err != nil {
			return "", "", err
		}
		verbose("dnssd %q: %s:%s", host, h, p)
		if len(port) == 0 {
			port = p
		}
		return h, port, nil
	}
	hosts, err := client.LoadHosts(hostsFile)
	if err != nil {
		return "", "", err
	}
	p, err := hosts.Port(host, port)
	if err != nil {
		return "", "", err
	}
	return hosts.HostName(host), p, nil
}

func run(ctx context.Context, args []string) error {
	var port string
	if len(args) > 1 {
		port = args[1]
	}
	host, port, err := resolve(args[0], port, *hostsFile)
	if err != nil {
		return err
	}

	var (
		in  io.Reader = os.Stdin
		out io.Writer = os.Stdout
	)
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if len(args) == 4 {
		i, err := os.Open(args[2])
		if err != nil {
			return fmt.Errorf("no valid input file under auto mode: %w", err)
		}
		defer i.Close()
		o, err := os.OpenFile(args[3], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer o.Close()
		in, out, interactive = i, o, false
	}

	fmt.Fprintf(os.Stderr, "Connecting to %s : %s\n", host, port)
	c := client.New(host, port).WithTimeout(*timeout)
	dctx, dcancel := context.WithTimeout(ctx, *dialWait)
	err = c.Dial(dctx)
	dcancel()
	if err != nil {
		return err
	}
	defer c.Close()

	if interactive {
		err = repl(c, os.Stdout)
	} else {
		err = lines(c, in, out)
	}

	wctx := ctx
	if *wait > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, *wait)
		defer cancel()
	}
	verbose("waiting for transfers")
	if werr := c.Wait(wctx); werr != nil && err == nil {
		err = fmt.Errorf("transfers still running: %w", werr)
	}
	return err
}

func main() {
	flag.Parse()
	if *debug {
		v = log.Printf
		client.V = log.Printf
		transfer.SetVerbose(log.Printf)
		ds.Verbose(log.Printf)
	}
	args := flag.Args()
	if len(args) != 1 && len(args) != 2 && len(args) != 4 {
		usage()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, args); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("SPLOIT:%v", err)
	}
}
