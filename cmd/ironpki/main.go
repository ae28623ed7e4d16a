package main

import (
	"github.com/awnumar/memguard"

	"github.com/jmcleod/ironpki/cmd/ironpki/cmd"
)

func main() {
	defer memguard.Purge()

	cmd.Execute()
}
