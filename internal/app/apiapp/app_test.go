package apiapp

import (
	"context"
	"net/http"
	"testing"
	"time"

	chatsvc "github.com/holehole5566/connecthub/internal/services/chat"
)

func TestShutdownClosesChatClients(t *testing.T) {
	hub := chatsvc.NewHub(chatsvc.Dependencies{})
	client := chatsvc.NewClient(1, 4)
	if err := hub.Register(client); err != nil {
		t.Fatalf("register: %v", err)
	}

	app := &App{server: &http.Server{}, hub: hub}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case <-client.Done():
	default:
		t.Fatalf("chat client still open after shutdown")
	}
}
