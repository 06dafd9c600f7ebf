//go:build !windows

package main

import (
	"fmt"

	"github.com/kardianos/qtrust/tstore"
)

func openRegistry(string) (tstore.Engine, error) {
	return nil, fmt.Errorf("the registry engine is only available on windows")
}
