package main

import "shiptrack/cmd/client/cmd"

func main() {
	cmd.Execute()
}
