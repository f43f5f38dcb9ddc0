package main

import "github.com/nehonix-edge/gatewaysupervisord/internal/cli"

func main() {
	cli.Execute()
}
