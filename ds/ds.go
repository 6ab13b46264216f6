// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ds

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"
	"golang.org/x/exp/slices"
)

// V allows debug printing.
var (
	v       = func(string, ...interface{}) {}
	cancel  = func() {}
	mu      sync.Mutex
	tenants = 0
	update  = make(chan struct{}, 1)
)

// Query is a parsed dnssd: URI.
type Query struct {
	Type   string
	Domain string
	Text   map[string][]string
}

const (
	// DsDefault is the URI for any sploitd on the local network.
	DsDefault = "dnssd:"
	// Service is the DNS-SD service type of sploitd.
	Service    = "_sploit._tcp"
	dsTimeout  = 1 * time.Second // query-timeout
	timeFormat = "15:04:05.000"
	dsUpdate   = 60 * time.Second // server meta-data refresh
)

// client relative code

// Verbose sets the debug printer.
func Verbose(f func(string, ...interface{})) {
	v = f
}

// check that dns-sd response has all required attributes
func required(src map[string]string, req map[string][]string) bool {
	for k := range req {
		if !slices.Contains(req[k], src[k]) {
			return false
		}
	}
	return true
}

// Parse parses a DNS-SD URI.
// The form is dnssd://domain/_service._network?reqkey=reqvalue. The
// domain defaults to local and the service to _sploit._tcp, so
// dnssd:?arch=arm64 picks any arm64 sploitd.
func Parse(uri string) (Query, error) {
	result := Query{
		Type:   Service,
		Domain: "local",
	}

	u, err := url.Parse(uri)
	if err != nil {
		return result, fmt.Errorf("trouble parsing url %s: %w", uri, err)
	}

	if u.Scheme != "dnssd" {
		return result, fmt.Errorf("%q is not a dns-sd URI", uri)
	}

	// following dns-sd URI conventions from CUPS
	if u.Host != "" {
		result.Domain = u.Host
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		result.Type = p
	}

	result.Text = u.Query()

	if len(result.Text["arch"]) == 0 {
		result.Text["arch"] = []string{runtime.GOARCH}
	}

	if len(result.Text["os"]) == 0 {
		result.Text["os"] = []string{runtime.GOOS}
	}

	return result, nil
}

// Lookup browses for a server matching query and returns its
// address and port.
func Lookup(query Query) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dsTimeout)
	defer cancel()

	service := fmt.Sprintf("%s.%s.", strings.Trim(query.Type, "."), strings.Trim(query.Domain, "."))

	v("Browsing for %s\n", service)

	respCh := make(chan *dnssd.BrowseEntry, 1)

	addFn := func(e dnssd.BrowseEntry) {
		v("%s	Add	%s	%s	%s	%s (%s)\n", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name, e.IPs)
		v("Checking %v against %v", e.Text, query.Text)
		if required(e.Text, query.Text) && len(e.IPs) > 0 {
			select {
			case respCh <- &e:
			default:
			}
		}
	}

	rmvFn := func(e dnssd.BrowseEntry) {
		v("%s	Rmv	%s	%s	%s	%s\n", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name)
	}

	done := make(chan error, 1)
	go func() {
		done <- dnssd.LookupType(ctx, service, addFn, rmvFn)
	}()

	var e *dnssd.BrowseEntry
	select {
	case e = <-respCh:
	case err := <-done:
		v("LookupType: %v", err)
		select {
		case e = <-respCh:
		default:
		}
	}
	if e == nil {
		return "", "", fmt.Errorf("dnssd found no suitable %s service", service)
	}

	if len(e.IPs) > 1 {
		v("WARNING: there was more than one option for address")
	}

	return e.IPs[0].String(), strconv.Itoa(e.Port), nil
}

// Server components

// ParseKv parses a key=value,key=value string into a map. Keys with
// no value are set to "true".
func ParseKv(arg string) map[string]string {
	txt := make(map[string]string)
	if len(arg) == 0 {
		return txt
	}
	ss := strings.Split(arg, ",")
	for _, pair := range ss {
		z := strings.SplitN(pair, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else {
			txt[z[0]] = "true"
		}
	}

	return txt
}

// Unregister stops advertising.
func Unregister() {
	v("stopping dns-sd server")
	cancel()
}

// DefaultInstance is the instance name sploitd advertises by default.
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err == nil {
		hostname += "-sploitd"
	} else {
		hostname = "sploitd"
	}

	return hostname
}

// UpdateSysInfo refreshes the load and tenant entries of txtFlag.
func UpdateSysInfo(txtFlag map[string]string) {
	sysInfo(txtFlag)
	mu.Lock()
	txtFlag["tenants"] = strconv.Itoa(tenants)
	mu.Unlock()

	v(" dsUpdateSysInfo %v", txtFlag)
}

// DefaultTxt fills in arch, os and cores if they are not set.
func DefaultTxt(txtFlag map[string]string) {
	if len(txtFlag["arch"]) == 0 {
		txtFlag["arch"] = runtime.GOARCH
	}

	if len(txtFlag["os"]) == 0 {
		txtFlag["os"] = runtime.GOOS
	}

	if len(txtFlag["cores"]) == 0 {
		txtFlag["cores"] = strconv.Itoa(runtime.NumCPU())
	}
}

// Tenant updates the tenant count by delta. It is the hook sploitd
// calls as control connections come and go.
func Tenant(delta int) {
	v("tenant delta %d", delta)
	mu.Lock()
	tenants += delta
	mu.Unlock()
	select {
	case update <- struct{}{}:
	default:
	}
}

// Tenants returns the current tenant count.
func Tenants() int {
	mu.Lock()
	defer mu.Unlock()
	return tenants
}

// Register advertises a sploitd on portFlag until Unregister.
func Register(instanceFlag, domainFlag, serviceFlag, interfaceFlag string, portFlag int, txtFlag map[string]string) error {
	v("starting dns-sd server")

	v("Advertising: %s.%s.%s.", strings.Trim(instanceFlag, "."), strings.Trim(serviceFlag, "."), strings.Trim(domainFlag, "."))

	ctx, ctxCancel := context.WithCancel(context.Background())

	resp, err := dnssd.NewResponder()
	if err != nil {
		ctxCancel()
		return fmt.Errorf("dnssd newreponder fail: %w", err)
	}

	ifaces := []string{}
	if len(interfaceFlag) > 0 {
		ifaces = append(ifaces, interfaceFlag)
	}

	if len(instanceFlag) == 0 {
		instanceFlag = DefaultInstance()
	}

	DefaultTxt(txtFlag)
	UpdateSysInfo(txtFlag)

	cfg := dnssd.Config{
		Name:   instanceFlag,
		Type:   serviceFlag,
		Domain: domainFlag,
		Port:   portFlag,
		Ifaces: ifaces,
		Text:   txtFlag,
	}
	srv, err := dnssd.NewService(cfg)
	if err != nil {
		ctxCancel()
		return fmt.Errorf("sploitd: advertise: New service fail: %w", err)
	}
	cancel = ctxCancel

	go func() {
		handle, err := resp.Add(srv)
		if err != nil {
			v("dnssd add: %v", err)
			return
		}
		v("%s	Got a reply for service %s: Name now registered and active\n", time.Now().Format(timeFormat), handle.Service().ServiceInstanceName())
		t := time.NewTicker(dsUpdate)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-update:
			case <-t.C:
			}
			UpdateSysInfo(txtFlag)
			handle.UpdateText(txtFlag, resp)
		}
	}()

	go func() {
		if err := resp.Respond(ctx); err != nil && ctx.Err() == nil {
			v("dnssd responder: %v", err)
		} else {
			v("sploit dns-sd responder exited")
		}
	}()

	return nil
}
