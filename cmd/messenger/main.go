// Messenger is a terminal client for the EventFlow messenger: it connects a
// session to the backend, joins a conversation and mirrors the live feed,
// with slash commands for the directory operations.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eventflow/messenger/internal/config"
	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/logger"
	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/notify"
	"github.com/eventflow/messenger/internal/session"
	"github.com/eventflow/messenger/internal/storage"
	"github.com/eventflow/messenger/internal/storage/memory"
	storageredis "github.com/eventflow/messenger/internal/storage/redis"
	"github.com/eventflow/messenger/internal/store"
)

func main() {
	logger.SetPrefix("messenger")
	userID := flag.String("user", "u-bob", "user ID to sign in as")
	userName := flag.String("name", "Bob Organizer", "display name")
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := session.New(cfg, session.Deps{})
	defer sess.Close()
	sess.SetCurrentUser(model.User{ID: *userID, DisplayName: *userName})

	prefStore := openPrefStore(ctx, cfg)
	defer prefStore.Close()
	bridge := notify.NewBridge(ctx, sess.Bus(), prefStore, terminalNotifier{}, *userID)
	defer bridge.Close()

	subscribe(sess, bridge)

	if err := sess.Connect(ctx); err != nil {
		logger.Errorf("connect: %v", err)
		os.Exit(1)
	}
	if err := sess.LoadConversations(ctx, store.FilterAll); err != nil {
		logger.Errorf("load conversations: %v", err)
		os.Exit(1)
	}
	printDirectory(sess)

	go repl(ctx, cancel, sess)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	fmt.Println("bye")
}

func openPrefStore(ctx context.Context, cfg *config.Config) storage.PreferenceStore {
	if cfg.Redis.URL == "" {
		return memory.New()
	}
	cli, err := storageredis.New(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Errorf("redis unavailable, using memory preference store: %v", err)
		return memory.New()
	}
	return cli
}

// terminalNotifier is the desktop-notification stand-in: a bell plus a line.
type terminalNotifier struct{}

func (terminalNotifier) Notify(_ context.Context, title, body string, _ map[string]string) {
	fmt.Printf("\a[notify] %s: %s\n", title, body)
}

func subscribe(sess *session.Session, bridge *notify.Bridge) {
	bus := sess.Bus()
	bus.On(event.MessageAdded, func(payload any) {
		p, ok := payload.(event.MessagePayload)
		if !ok || p.ConversationID != sess.ActiveConversation() {
			return
		}
		name := p.Message.SenderID
		if p.Message.Sender != nil {
			name = p.Message.Sender.DisplayName
		}
		fmt.Printf("%s%s: %s\n", bridge.TitleSuffix(), name, p.Message.Content)
	})
	bus.On(event.TypingChanged, func(payload any) {
		p, ok := payload.(event.TypingPayload)
		if !ok || p.ConversationID != sess.ActiveConversation() {
			return
		}
		if len(p.UserIDs) > 0 {
			fmt.Printf("… %s typing\n", strings.Join(p.UserIDs, ", "))
		}
	})
	bus.On(event.PresenceChanged, func(payload any) {
		p, ok := payload.(event.PresencePayload)
		if !ok {
			return
		}
		state := "offline"
		if p.Record.Online {
			state = "online"
		}
		fmt.Printf("* %s is %s\n", p.Record.UserID, state)
	})
	bus.On(event.SocketDisconnected, func(any) { fmt.Println("* connection lost, reconnecting...") })
	bus.On(event.SocketConnected, func(payload any) {
		if rejoined, _ := payload.(string); rejoined != "" {
			fmt.Printf("* reconnected, rejoined %s\n", rejoined)
		}
	})
	bus.On(event.SocketError, func(payload any) {
		if p, ok := payload.(event.ErrorPayload); ok {
			fmt.Printf("* connection error: %v\n", p.Err)
		}
	})
	bus.On(event.AuthFailed, func(any) {
		fmt.Println("* authentication failed, please sign in again")
	})
}

func repl(ctx context.Context, cancel context.CancelFunc, sess *session.Session) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "/quit":
			cancel()
			return
		case line == "/list":
			printDirectory(sess)
		case strings.HasPrefix(line, "/join "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			sess.SetActiveConversation(id)
			sess.JoinConversation(id)
			if err := sess.LoadMessages(ctx, id); err != nil {
				fmt.Printf("load messages: %v\n", err)
				continue
			}
			for _, m := range sess.Messages(id) {
				fmt.Printf("  %s: %s\n", m.SenderID, m.Content)
			}
			if err := sess.MarkConversationRead(ctx, id); err != nil {
				fmt.Printf("mark read: %v\n", err)
			}
		case line == "/older":
			more, err := sess.LoadOlderMessages(ctx, sess.ActiveConversation())
			if err != nil {
				fmt.Printf("load older: %v\n", err)
			} else if !more {
				fmt.Println("(no more messages)")
			}
		case strings.HasPrefix(line, "/filter "):
			sess.SetFilter(store.Filter(strings.TrimSpace(strings.TrimPrefix(line, "/filter "))))
			printDirectory(sess)
		case strings.HasPrefix(line, "/search "):
			for _, c := range sess.FilteredConversations(strings.TrimPrefix(line, "/search ")) {
				printConversation(sess, c)
			}
		case line == "/pin":
			sess.SetPinned(sess.ActiveConversation(), true)
		case line == "/archive":
			sess.SetArchived(sess.ActiveConversation(), true)
		default:
			active := sess.ActiveConversation()
			if active == "" {
				fmt.Println("join a conversation first: /join <id>")
				continue
			}
			sess.NotifyTyping(active)
			if _, err := sess.SendMessage(ctx, active, line, session.SendOptions{}); err != nil {
				fmt.Printf("send failed (kept for retry): %v\n", err)
			}
		}
	}
}

func printDirectory(sess *session.Session) {
	for _, c := range sess.FilteredConversations("") {
		printConversation(sess, c)
	}
}

func printConversation(sess *session.Session, c model.Conversation) {
	viewer := sess.CurrentUser().ID
	names := make([]string, 0, len(c.Participants))
	for _, p := range c.Others(viewer) {
		names = append(names, p.DisplayName)
	}
	marker := " "
	if p := c.Participant(viewer); p != nil {
		if p.IsPinned {
			marker = "*"
		}
		if p.UnreadCount > 0 {
			marker = fmt.Sprintf("%d", p.UnreadCount)
		}
	}
	preview := ""
	if c.LastMessage != nil {
		preview = c.LastMessage.Content
	}
	fmt.Printf("%s %s [%s] %s\n", marker, c.ID, strings.Join(names, ", "), preview)
}
