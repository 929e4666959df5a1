//go:build windows

package main

import (
	intdriver "github.com/krdx/remotemem/internal/driver"

	"github.com/krdx/remotemem/driver"
)

func openDriver(network, addr string) (driver.Driver, error) {
	if addr == "" {
		return intdriver.OpenDevice("")
	}
	return intdriver.Dial(network, addr)
}
