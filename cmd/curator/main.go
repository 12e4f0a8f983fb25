package main

import "curator/cmd/cmd"

func main() {
	cmd.Execute()
}
