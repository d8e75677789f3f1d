package main

import (
	"github.com/botdock/botdock/cmd"
)

// Populated at build time through ldflags.
var (
	version string
	commit  string
	date    string
)

func main() {
	cmd.ExecuteCLI(version, commit, date)
}
