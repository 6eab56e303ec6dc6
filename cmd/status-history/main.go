package main

import "github.com/pfrederiksen/status-history/internal/cli"

func main() {
	cli.Execute()
}
