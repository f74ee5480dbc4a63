package main

import "github.com/Aduersarius/polybet-sub009/cmd/sweep-cli/cmd"

func main() {
	cmd.Execute()
}
