package main

import "github.com/taoyao-code/gas-sensor/internal/cli"

func main() {
	cli.Execute()
}
