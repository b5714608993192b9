package main

import (
	"os"

	"github.com/malbeclabs/fraudprep/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
