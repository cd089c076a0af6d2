package main

import "github.com/reaandrew/snakes-and-ladders-sub000/internal/cli"

func main() {
	cli.Execute()
}
