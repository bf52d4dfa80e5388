package main

import "wikid/internal/cli"

func main() {
	cli.Execute()
}
