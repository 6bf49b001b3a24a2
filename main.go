package main

import (
	"os"

	"github.com/popsu/covidpass/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
