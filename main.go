package main

import (
	"gridloop/cmd"
)

func main() {
	cmd.Execute()
}
