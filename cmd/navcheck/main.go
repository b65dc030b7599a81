package main

import (
	"log"

	"github.com/rahul/navcheck/internal/cli"
	"github.com/rahul/navcheck/internal/observability"
)

func main() {
	// Route all log output through the terminal mutex so it never
	// interleaves with the pause prompt or status line.
	log.SetOutput(observability.NewTermWriter())

	cli.Execute()
}
