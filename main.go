package main

import "resolvebot/cmd"

func main() {
	cmd.Run()
}
