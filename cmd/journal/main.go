package main

import "go-journal/internal/cli"

func main() {
	cli.Execute()
}
