package main

import "github.com/samhoang/tapctl/cmd"

func main() {
	cmd.Execute()
}
