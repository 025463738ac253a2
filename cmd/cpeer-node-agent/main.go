package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/nodeagent/cmd/cpeer-node-agent/app"
)

func main() {
	if err := app.NewApp().Run(); err != nil {
		os.Exit(1)
	}
}
