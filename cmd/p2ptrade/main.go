package main

import (
	"os"

	"p2p_trade/cmd/p2ptrade/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
