package main

import "livetiming/cmd/relay-cli/command"

func main() {
	command.Execute()
}
