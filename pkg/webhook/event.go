package webhook

import (
	"fmt"
	"strings"

	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/utils"
)

// Event is one parsed webhook delivery that can render itself as a chat
// message.
type Event interface {
	RepoName() string
	ToWrapper() *message.Wrapper
}

type repository struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

// PushEvent mirrors the fields of a GitHub push delivery the bot reports.
type PushEvent struct {
	Ref        string     `json:"ref"`
	Compare    string     `json:"compare"`
	Repository repository `json:"repository"`
	Pusher     struct {
		Name string `json:"name"`
	} `json:"pusher"`
	Commits []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commits"`
}

func (e *PushEvent) RepoName() string { return e.Repository.FullName }

func (e *PushEvent) Branch() string {
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

func (e *PushEvent) ToWrapper() *message.Wrapper {
	if len(e.Commits) == 0 {
		// Branch deletions and tag pushes carry no commits; nothing worth
		// announcing.
		return message.New().SetUsable(false)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s pushed %d commit(s) to %s:%s\n",
		e.Pusher.Name, len(e.Commits), e.Repository.FullName, e.Branch())

	const maxListed = 5
	for i, commit := range e.Commits {
		if i == maxListed {
			fmt.Fprintf(&sb, "... and %d more\n", len(e.Commits)-maxListed)
			break
		}
		title, _, _ := strings.Cut(commit.Message, "\n")
		fmt.Fprintf(&sb, "%s %s (%s)\n",
			shortSHA(commit.ID), utils.Truncate(title, 72), commit.Author.Name)
	}
	if e.Compare != "" {
		sb.WriteString(e.Compare)
	}

	return message.New().AppendText(strings.TrimRight(sb.String(), "\n"))
}

// PullRequestEvent mirrors the fields of a pull_request delivery the bot
// reports. Only opened and closed actions are announced.
type PullRequestEvent struct {
	Action      string     `json:"action"`
	Number      int        `json:"number"`
	Repository  repository `json:"repository"`
	PullRequest struct {
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
		Merged  bool   `json:"merged"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
}

func (e *PullRequestEvent) RepoName() string { return e.Repository.FullName }

func (e *PullRequestEvent) ToWrapper() *message.Wrapper {
	var verb string
	switch e.Action {
	case "opened":
		verb = "opened"
	case "closed":
		if e.PullRequest.Merged {
			verb = "merged"
		} else {
			verb = "closed"
		}
	default:
		return message.New().SetUsable(false)
	}

	text := fmt.Sprintf("%s %s pull request #%d in %s:\n%s\n%s",
		e.PullRequest.User.Login, verb, e.Number, e.Repository.FullName,
		utils.Truncate(e.PullRequest.Title, 120), e.PullRequest.HTMLURL)

	return message.New().AppendText(text)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
