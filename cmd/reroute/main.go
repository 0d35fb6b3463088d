package main

import "reroute/internal/cli"

func main() {
	cli.Execute()
}
