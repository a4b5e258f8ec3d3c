// Package main
package main

import (
	"github.com/qqgroup/go-group-backup/cmd/gbak"
)

func main() {
	gbak.Main()
}
