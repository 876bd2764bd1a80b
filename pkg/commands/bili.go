package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/thirdparty/bilibili"
	"github.com/cometbot/comet/pkg/utils"
)

type BiliCommand struct {
	client *bilibili.Client
}

func (c *BiliCommand) Property() command.Property {
	return command.Property{
		Name:    "bili",
		Summary: "Look up a bilibili user or video",
		Help:    "Usage: bili user <mid> | bili video <bvid>",
	}
}

func (c *BiliCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	if len(env.Args) < 2 {
		return message.New().AppendText("Missing argument: bili user <mid> | bili video <bvid>"), nil
	}

	switch env.Args[0] {
	case "user":
		mid, err := strconv.ParseInt(env.Args[1], 10, 64)
		if err != nil {
			return message.New().AppendText(fmt.Sprintf("Invalid mid: %s", env.Args[1])), nil
		}
		card, err := c.client.UserCard(ctx, mid)
		if err != nil {
			return nil, err
		}
		w := message.New().AppendText(fmt.Sprintf(
			"%s (lv%d)\nFans: %d\n%s", card.Name, card.Level, card.Fans,
			utils.Truncate(card.Sign, 120)))
		if img, err := message.URLImage(card.FaceURL); err == nil {
			w.Append(img)
		}
		return w, nil

	case "video":
		video, err := c.client.Video(ctx, strings.TrimSpace(env.Args[1]))
		if err != nil {
			return nil, err
		}
		w := message.New().AppendText(fmt.Sprintf(
			"%s\nby %s\nViews: %d  Likes: %d  Danmaku: %d\nhttps://www.bilibili.com/video/%s",
			video.Title, video.Owner, video.Views, video.Likes, video.Danmaku, video.BVID))
		if img, err := message.URLImage(video.CoverURL); err == nil {
			w.Append(img)
		}
		return w, nil
	}

	return message.New().AppendText(fmt.Sprintf("Unknown subcommand: %s", env.Args[0])), nil
}
