package main

import (
	"github.com/kardianos/qtrust/tstore"
)

func openRegistry(path string) (tstore.Engine, error) {
	return tstore.OpenRegistry(path)
}
