package main

import "serverest/cli"

func main() {
	cli.Execute()
}
