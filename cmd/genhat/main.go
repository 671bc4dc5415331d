package main

import "github.com/genhat/genhat-core/cmd/genhat/cmd"

func main() {
	cmd.Execute()
}
