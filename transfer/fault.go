// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"errors"
	"fmt"
)

// ErrSizeMismatch matches any SizeMismatchError via errors.Is.
var ErrSizeMismatch = errors.New("transfer size mismatch")

// SizeMismatchError is the fault for a transfer that did not move
// exactly the agreed number of bytes. It is never retried.
type SizeMismatchError struct {
	Op   string
	Name string
	Want int64
	Got  int64
	Err  error
}

// Error implements error.
func (e *SizeMismatchError) Error() string {
	s := fmt.Sprintf("%s %q: moved %d bytes, want %d", e.Op, e.Name, e.Got, e.Want)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is reports whether target is ErrSizeMismatch.
func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}

// Unwrap returns the underlying I/O error, if any.
func (e *SizeMismatchError) Unwrap() error {
	return e.Err
}
