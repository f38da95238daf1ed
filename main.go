package main

import "github.com/selimozcann/seasec/cmd"

func main() {
	cmd.Execute()
}
