package main

import "imapcore/internal/cli"

func main() {
	cli.Execute()
}
