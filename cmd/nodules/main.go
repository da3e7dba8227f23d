package main

import "github.com/mvp-joe/nodule-extract/internal/cli"

func main() {
	cli.Execute()
}
