package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/channels"
	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/commands"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/gateway"
	"github.com/cometbot/comet/pkg/github"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/schedule"
	"github.com/cometbot/comet/pkg/session"
	"github.com/cometbot/comet/pkg/thirdparty/apexlegends"
	"github.com/cometbot/comet/pkg/thirdparty/bangumi"
	"github.com/cometbot/comet/pkg/thirdparty/bilibili"
	"github.com/cometbot/comet/pkg/thirdparty/jikipedia"
	"github.com/cometbot/comet/pkg/user"
	"github.com/cometbot/comet/pkg/webhook"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "onboard":
		onboard()
	case "gateway":
		gatewayCmd()
	case "status":
		statusCmd()
	case "version", "--version", "-v":
		fmt.Printf("comet v%s\n", commands.Version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("comet - multi-platform chat bot gateway v%s\n\n", commands.Version)
	fmt.Println("Usage: comet <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  onboard    Create the default config file")
	fmt.Println("  gateway    Run the bot gateway")
	fmt.Println("  status     Show config and channel status")
	fmt.Println("  version    Print the version")
}

func onboard() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	os.MkdirAll(cfg.DataPath(), 0755)

	fmt.Println("comet is ready!")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Enable a channel in", configPath)
	fmt.Println("  2. Run: comet gateway")
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()
	fmt.Println("comet status")
	fmt.Println()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "ok")
	} else {
		fmt.Println("Config:", configPath, "missing")
	}
	fmt.Println("Data dir:", cfg.DataPath())

	enabled := func(on bool) string {
		if on {
			return "enabled"
		}
		return "disabled"
	}
	fmt.Println("OneBot:", enabled(cfg.Channels.OneBot.Enabled))
	fmt.Println("Telegram:", enabled(cfg.Channels.Telegram.Enabled))
	fmt.Println("Discord:", enabled(cfg.Channels.Discord.Enabled))
	fmt.Println("Console:", enabled(cfg.Channels.Console.Enabled))
	fmt.Println("Webhook:", enabled(cfg.Webhook.Enabled))
	if cfg.GitHub.Token != "" {
		fmt.Println("GitHub token: set")
	} else {
		fmt.Println("GitHub token: not set")
	}
}

func gatewayCmd() {
	for _, arg := range os.Args[2:] {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			fmt.Println("Debug mode enabled")
			break
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	dataDir := cfg.DataPath()
	os.MkdirAll(dataDir, 0755)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgBus := bus.NewMessageBus()
	users := user.NewStore(dataDir, cfg.User.InitialCoin, cfg.User.CheckInCoin)
	sessions := session.NewManager()
	subs := github.NewSubscriptionStore(dataDir)
	ghClient := github.NewClient(ctx, cfg.GitHub.Token)
	bangumiClient := bangumi.NewClient()

	registry := command.NewRegistry()
	registry.MustRegister(commands.All(commands.Deps{
		Config:  cfg,
		GitHub:  ghClient,
		Subs:    subs,
		Jiki:    jikipedia.NewClient(),
		Bili:    bilibili.NewClient(),
		Bangumi: bangumiClient,
		Apex:    apexlegends.NewClient(cfg.ThirdParty.ApexAPIKey),
	})...)

	dispatcher := command.NewDispatcher(registry, users, sessions, msgBus, cfg.Command.Prefixes)
	loop := gateway.NewLoop(msgBus, dispatcher, sessions)

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		fmt.Printf("Error creating channel manager: %v\n", err)
		os.Exit(1)
	}

	enabledChannels := channelManager.GetEnabledChannels()
	if len(enabledChannels) > 0 {
		fmt.Printf("Channels enabled: %s\n", strings.Join(enabledChannels, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}

	scheduler := schedule.NewService(dataDir, func(job *schedule.Job) error {
		return deliverScheduledJob(ctx, job, bangumiClient, msgBus)
	})
	if err := scheduler.Start(); err != nil {
		fmt.Printf("Error starting schedule service: %v\n", err)
	}

	var webhookServer *webhook.Server
	if cfg.Webhook.Enabled {
		webhookServer = webhook.NewServer(cfg.Webhook, subs, msgBus)
		if err := webhookServer.Start(ctx); err != nil {
			fmt.Printf("Error starting webhook server: %v\n", err)
		} else {
			fmt.Printf("Webhook listening on %s:%d\n", cfg.Webhook.Host, cfg.Webhook.Port)
		}
	}

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
	}

	go loop.Run(ctx)

	fmt.Printf("Registered %d commands\n", registry.Count())
	fmt.Println("Gateway running. Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	loop.Stop()
	scheduler.Stop()
	if webhookServer != nil {
		webhookServer.Stop(context.Background())
	}
	channelManager.StopAll(context.Background())
	sessions.Close()
	fmt.Println("Bye.")
}

// deliverScheduledJob renders one due job's payload and publishes it to the
// job's target chat.
func deliverScheduledJob(ctx context.Context, job *schedule.Job, bangumiClient *bangumi.Client, msgBus *bus.MessageBus) error {
	var w *message.Wrapper

	switch job.Payload.Kind {
	case "message":
		if job.Payload.Message == "" {
			return fmt.Errorf("job %s has empty message payload", job.ID)
		}
		w = message.New().AppendText(job.Payload.Message)

	case "bangumi_daily":
		items, err := bangumiClient.Today(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		var sb strings.Builder
		sb.WriteString("Airing today:\n")
		for _, item := range items {
			name := item.NameCN
			if name == "" {
				name = item.Name
			}
			sb.WriteString(name + "\n")
		}
		w = message.New().AppendText(strings.TrimRight(sb.String(), "\n"))

	default:
		return fmt.Errorf("unknown payload kind %q", job.Payload.Kind)
	}

	msgBus.PublishOutbound(bus.OutboundMessage{
		Channel: job.Payload.Channel,
		ChatID:  job.Payload.ChatID,
		Message: w,
	})
	return nil
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".comet", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}
