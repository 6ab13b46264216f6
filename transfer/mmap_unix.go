// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package transfer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps the first size bytes of path read-only. The returned
// func unmaps and closes the file.
func mapFile(path string, size int64) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	// Mapping past EOF gets you a SIGBUS on first touch.
	if fi.Size() < size {
		f.Close()
		return nil, nil, &SizeMismatchError{Op: "map", Name: path, Want: size, Got: fi.Size()}
	}
	if size == 0 {
		return []byte{}, f.Close, nil
	}
	b, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap %q: %w", path, err)
	}
	return b, func() error {
		err := unix.Munmap(b)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}
