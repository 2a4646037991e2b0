package main

import "github.com/sockbench/sockbench/cmd"

func main() {
	cmd.Execute()
}
