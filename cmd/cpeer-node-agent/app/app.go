package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/nodeagent/cmd/cpeer-node-agent/app/options"
	"github.com/autopeer-io/nodeagent/pkg/app"
)

const (
	commandName = "cpeer-node-agent"
	commandDesc = `The Autopeer Node Agent runs on a sensor node. It keeps an MQTT session
with the device platform, reports telemetry, answers RPCs and applies
firmware updates announced through shared attributes.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch an Autopeer node agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
