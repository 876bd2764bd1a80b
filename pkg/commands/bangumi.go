package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/thirdparty/bangumi"
)

type BangumiCommand struct {
	client *bangumi.Client
}

func (c *BangumiCommand) Property() command.Property {
	return command.Property{
		Name:    "bangumi",
		Aliases: []string{"bgm"},
		Summary: "Show today's broadcast schedule",
		Help:    "Usage: bangumi",
	}
}

func (c *BangumiCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	items, err := c.client.Today(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return message.New().AppendText("Nothing airs today"), nil
	}

	var sb strings.Builder
	sb.WriteString("Airing today:\n")
	for _, item := range items {
		name := item.NameCN
		if name == "" {
			name = item.Name
		}
		if item.Score > 0 {
			fmt.Fprintf(&sb, "%s (%.1f)\n", name, item.Score)
		} else {
			fmt.Fprintf(&sb, "%s\n", name)
		}
	}
	return message.New().AppendText(strings.TrimRight(sb.String(), "\n")), nil
}
