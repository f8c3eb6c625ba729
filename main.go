package main

import "matinee.app/mcp-matinee/internal/cli"

func main() {
	cli.Execute()
}
