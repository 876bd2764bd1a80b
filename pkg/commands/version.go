package commands

import (
	"context"
	"fmt"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
)

// Version is stamped by the build; "dev" for local builds.
var Version = "dev"

type VersionCommand struct{}

func (c *VersionCommand) Property() command.Property {
	return command.Property{
		Name:    "version",
		Aliases: []string{"v"},
		Summary: "Show the bot version",
		Help:    "Usage: version",
	}
}

func (c *VersionCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	return message.New().AppendText(fmt.Sprintf("Comet %s", Version)), nil
}
