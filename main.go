package main

import "github.com/fleetworks/fleetgate/cmd"

func main() {
	cmd.Execute()
}
