package main

import "github.com/devicelab-dev/applogin-e2e/pkg/cli"

func main() {
	cli.Execute()
}
