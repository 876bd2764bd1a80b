package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/session"
	"github.com/cometbot/comet/pkg/thirdparty/jikipedia"
	"github.com/cometbot/comet/pkg/utils"
)

const (
	jikiMaxResults    = 5
	jikiPickerTimeout = 15 * time.Second
)

// JikiCommand searches the slang dictionary. With more than one hit it
// shows a numbered list and opens a short session: the next message from
// the same identity picks a result by number.
type JikiCommand struct {
	client *jikipedia.Client
}

func (c *JikiCommand) Property() command.Property {
	return command.Property{
		Name:    "jiki",
		Summary: "Look up a phrase on Jikipedia",
		Help:    "Usage: jiki <phrase>\nReply with a number within 15 seconds to pick a result.",
		Cost:    8,
	}
}

func (c *JikiCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	if len(env.Args) == 0 {
		return message.New().AppendText("Missing argument: jiki <phrase>"), nil
	}
	phrase := strings.Join(env.Args, " ")

	defs, err := c.client.Search(ctx, phrase, jikiMaxResults)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return message.New().AppendText(fmt.Sprintf("No results for %q", phrase)), nil
	}
	if len(defs) == 1 {
		return renderDefinition(defs[0]), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for %q, reply with a number to pick one:\n", phrase)
	for i, def := range defs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, def.Title)
	}

	env.Sessions.Register(env.Identity(), jikiPickerTimeout, c.pickerHandler(env, defs))

	return message.New().AppendText(strings.TrimRight(sb.String(), "\n")), nil
}

func (c *JikiCommand) pickerHandler(env *command.Env, defs []jikipedia.Definition) session.Handler {
	return func(ctx context.Context, msg *message.Wrapper, s *session.Session) {
		defer s.Expire()

		n, err := strconv.Atoi(strings.TrimSpace(msg.AllText()))
		if err != nil || n < 1 || n > len(defs) {
			env.Reply(message.New().AppendText(fmt.Sprintf(
				"Pick a number between 1 and %d", len(defs))))
			return
		}
		env.Reply(renderDefinition(defs[n-1]))
	}
}

func renderDefinition(def jikipedia.Definition) *message.Wrapper {
	w := message.New().AppendText(fmt.Sprintf(
		"%s\n%s", def.Title, utils.Truncate(def.Content, 500)))
	if def.ImageURL != "" {
		if img, err := message.URLImage(def.ImageURL); err == nil {
			w.Append(img)
		}
	}
	return w
}
