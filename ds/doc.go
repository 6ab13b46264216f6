// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Decentralized Services (aka ds)
// Inspired by http://man.cat-v.org/inferno/8/cs
//
// This package provides an opinionated DNS-SD for sploit and sploitd.
//
// sploitd advertises itself as _sploit._tcp, with TXT records for its
// architecture, load and number of connected clients (tenants). The
// sploit client takes a host of the form dnssd:?key=value and picks
// the first server whose TXT records match.
package ds
