package main

import "github.com/oshokin/fall-monitor/cmd/fall-monitor/cmd"

func main() {
	cmd.Execute()
}
