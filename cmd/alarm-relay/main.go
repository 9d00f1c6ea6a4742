package main

import "github.com/oshokin/alarm-relay/cmd/alarm-relay/cmd"

func main() {
	cmd.Execute()
}
