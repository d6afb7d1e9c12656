package main

import "github.com/vietddude/batchwatch/internal/cli"

func main() {
	cli.Execute()
}
