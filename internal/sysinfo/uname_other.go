//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package sysinfo

import "errors"

func readUname() (uname, error) {
	return uname{}, errors.New("sysinfo: uname not supported on this platform")
}
