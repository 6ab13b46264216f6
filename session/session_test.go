// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"errors"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCheckPassword(t *testing.T) {
	long := strings.Repeat("x", MaxPasswordLen)
	for _, tt := range []struct {
		name string
		pw   string
		try  string
		ok   bool
	}{
		{name: "match", pw: "secret", try: "secret", ok: true},
		{name: "mismatch", pw: "secret", try: "Secret", ok: false},
		{name: "prefix", pw: "secret", try: "secre", ok: false},
		{name: "empty", pw: "secret", try: "", ok: false},
		{name: "bounded", pw: long + "a", try: long + "b", ok: true},
	} {
		u := &User{Name: "alice", Password: tt.pw}
		if got := u.CheckPassword(tt.try); got != tt.ok {
			t.Errorf("%s:CheckPassword(%q): %v != %v", tt.name, tt.try, got, tt.ok)
		}
	}
}

func TestLifecycle(t *testing.T) {
	v = t.Logf
	st := NewStore()
	u := &User{Name: "alice", Password: "secret"}

	s := New(u, "10.0.0.1", 4000)
	if !s.Pending() {
		t.Fatalf("New(): session is not pending")
	}
	if _, ok := st.Find("10.0.0.1", 4000); ok {
		t.Fatalf("Find before Commit: found a session")
	}

	st.Commit(s)
	if st.Active("10.0.0.1", 4000) {
		t.Fatalf("Active with a pending session: true != false")
	}

	s.Flags &^= WaitPass
	if !st.Active("10.0.0.1", 4000) {
		t.Fatalf("Active after clearing WaitPass: false != true")
	}
	if st.Active("10.0.0.1", 4001) {
		t.Fatalf("Active(other port): true != false")
	}
	if st.Active("10.0.0.2", 4000) {
		t.Fatalf("Active(other ip): true != false")
	}

	if err := st.Remove("10.0.0.1", 4000); err != nil {
		t.Fatalf("Remove: %v != nil", err)
	}
	if st.Active("10.0.0.1", 4000) {
		t.Fatalf("Active after Remove: true != false")
	}
	if err := st.Remove("10.0.0.1", 4000); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Remove on empty store: %v != %v", err, ErrNoSession)
	}
}

func TestUsers(t *testing.T) {
	v = t.Logf
	st := NewStore()
	for i, n := range []string{"carol", "alice", "bob"} {
		s := New(&User{Name: n}, "10.0.0.1", 4000+i)
		s.Flags = 0
		st.Commit(s)
	}
	st.Commit(New(&User{Name: "mallory"}, "10.0.0.9", 1))

	got := st.Users()
	want := []string{"alice", "bob", "carol"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Users(): %q != %q", got, want)
	}
}

func TestSweep(t *testing.T) {
	v = t.Logf
	st := NewStore()
	old := New(&User{Name: "old"}, "10.0.0.1", 1)
	old.Expires = time.Now().Add(-time.Minute)
	st.Commit(old)
	st.Commit(New(&User{Name: "new"}, "10.0.0.1", 2))

	if n := st.Sweep(time.Now()); n != 1 {
		t.Fatalf("Sweep: removed %d, want 1", n)
	}
	if _, ok := st.Find("10.0.0.1", 1); ok {
		t.Errorf("expired session survived Sweep")
	}
	if _, ok := st.Find("10.0.0.1", 2); !ok {
		t.Errorf("live session removed by Sweep")
	}
}

func TestConcurrentCommit(t *testing.T) {
	v = t.Logf
	st := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := New(&User{Name: "u"}, "10.0.0.1", i)
			s.Flags = 0
			st.Commit(s)
			st.Active("10.0.0.1", i)
		}(i)
	}
	wg.Wait()
	if st.Len() != 64 {
		t.Errorf("Len(): %d != 64", st.Len())
	}
}

func TestEndpointOf(t *testing.T) {
	for _, tt := range []struct {
		name string
		addr net.Addr
		want Endpoint
	}{
		{name: "tcp", addr: &net.TCPAddr{IP: net.IPv4(192, 168, 0, 3), Port: 5555}, want: Endpoint{IP: "192.168.0.3", Port: 5555}},
		{name: "unix", addr: &net.UnixAddr{Name: "/tmp/s", Net: "unix"}, want: Endpoint{IP: "127.0.0.1"}},
		{name: "nil", addr: nil, want: Endpoint{IP: "127.0.0.1"}},
	} {
		if got := EndpointOf(tt.addr); got != tt.want {
			t.Errorf("%s:EndpointOf(%v): %v != %v", tt.name, tt.addr, got, tt.want)
		}
	}
}
