package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/thirdparty/apexlegends"
)

type ApexCommand struct {
	client *apexlegends.Client
}

func (c *ApexCommand) Property() command.Property {
	return command.Property{
		Name:    "apex",
		Summary: "Look up Apex Legends player stats",
		Help:    "Usage: apex <player> [PC|PS4|X1]",
		Cost:    4,
	}
}

func (c *ApexCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	if len(env.Args) == 0 {
		return message.New().AppendText("Missing argument: apex <player> [PC|PS4|X1]"), nil
	}

	platform := ""
	if len(env.Args) > 1 {
		platform = strings.ToUpper(env.Args[1])
	}

	player, err := c.client.Player(ctx, env.Args[0], platform)
	if err != nil {
		return nil, err
	}

	status := "offline"
	if player.Online {
		status = "online"
	}
	return message.New().AppendText(fmt.Sprintf(
		"%s [%s] level %d, %s\nRank: %s %d (%d RP)\nCurrent legend: %s",
		player.Name, player.Platform, player.Level, status,
		player.RankName, player.RankDiv, player.RankScore, player.SelectedLegend)), nil
}
