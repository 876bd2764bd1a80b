package commands

import (
	"context"
	"fmt"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
)

type CheckInCommand struct{}

func (c *CheckInCommand) Property() command.Property {
	return command.Property{
		Name:    "checkin",
		Aliases: []string{"ci"},
		Summary: "Claim the daily coin grant",
		Help:    "Usage: checkin",
	}
}

func (c *CheckInCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	granted, ok := env.Users.CheckIn(env.UserKey())
	if !ok {
		return message.New().AppendText("You already checked in today"), nil
	}
	return message.New().AppendText(fmt.Sprintf(
		"Checked in: +%d coin, balance %d", granted, env.Users.Balance(env.UserKey()))), nil
}
