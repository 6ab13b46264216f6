// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import "crypto/subtle"

// MaxPasswordLen bounds the number of password bytes compared on login.
const MaxPasswordLen = 256

// User is a configured account. Users are created once, from the
// configuration file, and never change afterwards. Whether a user is
// logged in is a property of the Store, not of the User.
type User struct {
	Name     string
	Password string
}

// CheckPassword reports whether pw is the user's password.
// At most MaxPasswordLen bytes of either string are compared.
func (u *User) CheckPassword(pw string) bool {
	return subtle.ConstantTimeCompare([]byte(bound(pw)), []byte(bound(u.Password))) == 1
}

func bound(s string) string {
	if len(s) > MaxPasswordLen {
		return s[:MaxPasswordLen]
	}
	return s
}
