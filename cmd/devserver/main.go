// Devserver runs the in-memory EventFlow backend stub: the REST endpoints and
// socket feed the messenger client talks to, seeded with a pair of demo users
// and one conversation.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eventflow/messenger/internal/config"
	"github.com/eventflow/messenger/internal/devserver"
	"github.com/eventflow/messenger/internal/logger"
	"github.com/eventflow/messenger/internal/model"
)

func main() {
	logger.SetPrefix("devserver")
	cfg := config.Load()

	var origins []string
	for _, o := range strings.Split(cfg.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	srv := devserver.New(origins)
	seed(srv)

	httpSrv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.ServerAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("listen: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func seed(srv *devserver.Server) {
	alice := model.UserPublic{ID: "u-alice", DisplayName: "Alice Supplier"}
	bob := model.UserPublic{ID: "u-bob", DisplayName: "Bob Organizer"}
	srv.SeedUser(alice)
	srv.SeedUser(bob)

	now := time.Now().UTC()
	conv := model.Conversation{
		ID: "c-demo",
		Participants: []model.Participant{
			{UserID: alice.ID, DisplayName: alice.DisplayName},
			{UserID: bob.ID, DisplayName: bob.DisplayName},
		},
		Context:   &model.ConversationContext{Type: model.ContextListing, EntityID: "listing-42", Title: "Wedding catering"},
		CreatedAt: now.Add(-24 * time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
	history := []model.Message{
		{
			ID:             "m-1",
			ConversationID: conv.ID,
			SenderID:       bob.ID,
			Content:        "Hi! Is the catering package still available for June?",
			ContentType:    model.ContentTypeText,
			Status:         model.StatusSent,
			CreatedAt:      now.Add(-2 * time.Hour),
			Sender:         &bob,
		},
		{
			ID:             "m-2",
			ConversationID: conv.ID,
			SenderID:       alice.ID,
			Content:        "Yes, a few dates are open. What headcount are you planning?",
			ContentType:    model.ContentTypeText,
			Status:         model.StatusSent,
			CreatedAt:      now.Add(-time.Hour),
			Sender:         &alice,
		},
	}
	conv.LastMessage = &model.LastMessage{
		Content:  history[1].Content,
		SenderID: history[1].SenderID,
		SentAt:   history[1].CreatedAt,
		Type:     model.ContentTypeText,
	}
	srv.SeedConversation(conv, history)
	logger.Infof("seeded conversation %s with users %s, %s", conv.ID, alice.ID, bob.ID)
}
