package main

import "github.com/kozaktomas/attendance-engine/cmd"

func main() {
	cmd.Execute()
}
