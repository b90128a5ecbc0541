package main

import "github.com/wobbat/th/cmd"

func main() {
	cmd.Execute()
}
