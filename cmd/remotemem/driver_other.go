//go:build !windows

package main

import (
	"errors"

	intdriver "github.com/krdx/remotemem/internal/driver"

	"github.com/krdx/remotemem/driver"
)

func openDriver(network, addr string) (driver.Driver, error) {
	if addr == "" {
		return nil, errors.New("no driver service address, use --addr")
	}
	return intdriver.Dial(network, addr)
}
