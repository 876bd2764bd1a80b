// Package commands holds the built-in command set. Each command is a small
// struct implementing command.Command; All wires them up with their shared
// dependencies for registration at startup.
package commands

import (
	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/github"
	"github.com/cometbot/comet/pkg/thirdparty/apexlegends"
	"github.com/cometbot/comet/pkg/thirdparty/bangumi"
	"github.com/cometbot/comet/pkg/thirdparty/bilibili"
	"github.com/cometbot/comet/pkg/thirdparty/jikipedia"
)

// Deps bundles everything the built-in commands share.
type Deps struct {
	Config  *config.Config
	GitHub  *github.Client
	Subs    *github.SubscriptionStore
	Jiki    *jikipedia.Client
	Bili    *bilibili.Client
	Bangumi *bangumi.Client
	Apex    *apexlegends.Client
}

// All returns the full built-in command set.
func All(deps Deps) []command.Command {
	return []command.Command{
		&VersionCommand{},
		&HelpCommand{},
		&CheckInCommand{},
		&JikiCommand{client: deps.Jiki},
		&BiliCommand{client: deps.Bili},
		&BangumiCommand{client: deps.Bangumi},
		&ApexCommand{client: deps.Apex},
		&GitHubCommand{client: deps.GitHub, subs: deps.Subs},
	}
}
