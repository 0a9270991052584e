package main

import (
	"github.com/trace2tools/trace2fold/internal/cli/cmd"
)

func main() {
	cmd.Execute()
}
