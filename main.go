package main

import "github.com/naka-gawa/github-contrib/cmd"

func main() {
	cmd.Execute()
}
