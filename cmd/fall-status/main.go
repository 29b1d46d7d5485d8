package main

import "github.com/oshokin/fall-monitor/cmd/fall-status/cmd"

func main() {
	cmd.Execute()
}
