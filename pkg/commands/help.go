package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
)

type HelpCommand struct{}

func (c *HelpCommand) Property() command.Property {
	return command.Property{
		Name:    "help",
		Aliases: []string{"h"},
		Summary: "List commands or show detailed help",
		Help:    "Usage: help [command]",
	}
}

func (c *HelpCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	if len(env.Args) > 0 {
		name := env.Args[0]
		cmd, ok := env.Registry.Resolve(name)
		if !ok {
			return message.New().AppendText(fmt.Sprintf("No such command: %s", name)), nil
		}
		prop := cmd.Property()

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s - %s\n", prop.Name, prop.Summary)
		if len(prop.Aliases) > 0 {
			fmt.Fprintf(&sb, "Aliases: %s\n", strings.Join(prop.Aliases, ", "))
		}
		if prop.Cost > 0 {
			fmt.Fprintf(&sb, "Cost: %d coin\n", prop.Cost)
		}
		sb.WriteString(prop.Help)
		return message.New().AppendText(strings.TrimRight(sb.String(), "\n")), nil
	}

	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	for _, prop := range env.Registry.Properties() {
		fmt.Fprintf(&sb, "%s - %s", prop.Name, prop.Summary)
		if prop.Cost > 0 {
			fmt.Fprintf(&sb, " (cost %d)", prop.Cost)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Use help <command> for details")
	return message.New().AppendText(sb.String()), nil
}
