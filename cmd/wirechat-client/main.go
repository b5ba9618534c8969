package main

import "github.com/vovakirdan/wirechat-client/internal/cli"

func main() {
	cli.Execute()
}
