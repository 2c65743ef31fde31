package main

import "github.com/jazzyalex/agent-sessions/cmd"

func main() {
	cmd.Execute()
}
