// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package transfer

import (
	"io"
	"os"
)

// mapFile reads the first size bytes of path. There is no mmap here.
func mapFile(path string, size int64) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	b := make([]byte, size)
	n, err := io.ReadFull(f, b)
	if err != nil {
		return nil, nil, &SizeMismatchError{Op: "map", Name: path, Want: size, Got: int64(n), Err: err}
	}
	return b, func() error { return nil }, nil
}
