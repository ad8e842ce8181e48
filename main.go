package main

import "github.com/makeflow/ordered-lock/cmd"

func main() {
	cmd.Execute()
}
