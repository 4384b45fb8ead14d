package main

import "github.com/longkey1/webchat/cmd"

func main() {
	cmd.Execute()
}
