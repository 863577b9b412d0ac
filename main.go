package main

import "kb-bridge/cmd"

func main() {
	cmd.Execute()
}
