package main

import "github.com/user/gridsync/internal/cli"

func main() {
	cli.Execute()
}
