package main

import (
	"github.com/behide-game/Behide/cmd"
)

func main() {
	cmd.Execute()
}
