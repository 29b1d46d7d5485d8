package main

import "github.com/oshokin/fall-monitor/cmd/fall-cancel/cmd"

func main() {
	cmd.Execute()
}
