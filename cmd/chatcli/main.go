// chatcli is a terminal chat client exercising the synchronization core
// end to end against a running chat server.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	chatsync "github.com/md-asharaf/campus-bazaar-sub000"
	"github.com/md-asharaf/campus-bazaar-sub000/auth"
	"github.com/md-asharaf/campus-bazaar-sub000/connection"
	"github.com/md-asharaf/campus-bazaar-sub000/message"
)

var (
	flagConfig  string
	flagServer  string
	flagAPI     string
	flagToken   string
	flagChat    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Terminal client for the marketplace chat",
	Long: `chatcli connects to the chat server, joins a conversation, and
bridges stdin lines to messages while printing live events.`,
	RunE: run,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "chatcli.yaml", "config file path")
	rootCmd.Flags().StringVar(&flagServer, "server", "", "websocket server URL")
	rootCmd.Flags().StringVar(&flagAPI, "api", "", "REST API base URL")
	rootCmd.Flags().StringVar(&flagToken, "token", "", "bearer token")
	rootCmd.Flags().StringVar(&flagChat, "chat", "", "conversation id to join")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagServer != "" {
		cfg.ServerURL = flagServer
	}
	if flagAPI != "" {
		cfg.APIURL = flagAPI
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	if flagChat != "" {
		cfg.Chat = flagChat
	}
	if cfg.ServerURL == "" {
		return fmt.Errorf("no server URL configured")
	}
	if cfg.Chat == "" {
		return fmt.Errorf("no conversation configured")
	}

	if cfg.Token != "" && auth.Expired(cfg.Token, 30*time.Second) {
		fmt.Fprintln(os.Stderr, "warning: token is expired or about to expire")
	}

	options := chatsync.NewOptions()
	options.ServerURL = cfg.ServerURL
	options.APIURL = cfg.APIURL
	options.Tokens = auth.StaticToken(cfg.Token)

	session, err := chatsync.New(options)
	if err != nil {
		return err
	}
	defer session.Close()

	session.OnMessage(func(msg *message.Message) {
		fmt.Printf("[%s] %s: %s\n", msg.SentAt.Format("15:04:05"), msg.SenderID, msg.Content)
	})
	session.OnMessageStatus(func(msg *message.Message) {
		fmt.Printf("  · %s -> %s\n", msg.ID, msg.Status)
	})
	session.OnTyping(func(chatID, userID string, isTyping bool) {
		if isTyping {
			fmt.Printf("  · %s is typing…\n", userID)
		}
	})
	session.OnPresence(func(userID string, online bool) {
		state := "offline"
		if online {
			state = "online"
		}
		fmt.Printf("  · %s is %s\n", userID, state)
	})
	session.OnConnectionState(func(state connection.State) {
		fmt.Printf("  · connection: %s\n", state)
	})
	session.OnServerError(func(msg string) {
		fmt.Fprintf(os.Stderr, "server error: %s\n", msg)
	})
	session.OnServerDisconnect(func(reason string) {
		fmt.Fprintf(os.Stderr, "disconnected by server (%s)\n", reason)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := session.Join(ctx, cfg.Chat); err != nil {
		return fmt.Errorf("join %s: %w", cfg.Chat, err)
	}

	for _, msg := range session.Messages(cfg.Chat) {
		fmt.Printf("[%s] %s: %s\n", msg.SentAt.Format("15:04:05"), msg.SenderID, msg.Content)
	}
	fmt.Printf("joined %s as %s — type to chat, /help for commands\n", cfg.Chat, session.UserID())

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(session, cfg.Chat, line); err != nil {
				if err == errQuit {
					return nil
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

var errQuit = fmt.Errorf("quit")

func handleLine(session *chatsync.Session, chatID, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch {
	case line == "/quit":
		return errQuit
	case line == "/help":
		fmt.Println("/who — online users, /typing — who is typing, /quit — exit")
		return nil
	case line == "/who":
		fmt.Printf("online: %s\n", strings.Join(session.OnlineUsers(), ", "))
		return nil
	case line == "/typing":
		fmt.Printf("typing: %s\n", strings.Join(session.TypingUsers(chatID), ", "))
		return nil
	case strings.HasPrefix(line, "/retry "):
		_, err := session.Retry(strings.TrimPrefix(line, "/retry "))
		return err
	}

	_, err := session.Send(chatID, line)
	return err
}
