package main

import "sync-bridge/cmd"

func main() {
	cmd.Execute()
}
