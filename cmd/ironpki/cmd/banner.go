package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _____                 _____  _  _______
 |_   _|               |  __ \| |/ /_   _|
   | |  _ __ ___  _ __ | |__) | ' /  | |
   | | | '__/ _ \| '_ \|  ___/|  <   | |
  _| |_| | | (_) | | | | |    | . \ _| |_
 |_____|_|  \___/|_| |_|_|    |_|\_\_____|

`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Easy-RSA Lifecycle Service - Version %s\x1b[0m\n\n", Version)
}
