package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
	chatsvc "github.com/holehole5566/connecthub/internal/services/chat"
	"github.com/holehole5566/connecthub/internal/transport/http/dto"
)

func TestChatSendPersistsAndReturnsMessage(t *testing.T) {
	h, messages := newChatHandler()

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/chat/1/messages", bytes.NewBufferString(`{"text":"hello"}`)), 1)
	req = withMatchID(req, "1")
	rr := httptest.NewRecorder()
	h.Send(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d body=%s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var resp dto.MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "hello" || resp.FromUserID != 1 || resp.Status != "sent" || !resp.IsFromCurrentUser {
		t.Fatalf("unexpected message: %+v", resp)
	}
	if got := len(messages.rows); got != 1 {
		t.Fatalf("unexpected stored messages: %d", got)
	}
}

func TestChatSendAdvancesMatchLastMessage(t *testing.T) {
	h, _, matches := newChatHandlerWithMatches()

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/chat/1/messages", bytes.NewBufferString(`{"text":"hello"}`)), 2)
	req = withMatchID(req, "1")
	rr := httptest.NewRecorder()
	h.Send(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d body=%s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var resp dto.MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	last := matches.matches[1].LastMessageID
	if last == nil || *last != resp.ID {
		t.Fatalf("match last message not advanced: got %v want %s", last, resp.ID)
	}
}

func TestChatSendRejectsNULText(t *testing.T) {
	h, messages := newChatHandler()

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/chat/1/messages", bytes.NewBufferString(`{"text":"hi\u0000there"}`)), 1)
	req = withMatchID(req, "1")
	rr := httptest.NewRecorder()
	h.Send(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d body=%s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	assertErrorCode(t, rr, "VALIDATION_ERROR")
	if len(messages.rows) != 0 {
		t.Fatalf("message with NUL must not be stored")
	}
}

func TestChatSendRejectsEmptyText(t *testing.T) {
	h, messages := newChatHandler()

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/chat/1/messages", bytes.NewBufferString(`{"text":"   "}`)), 1)
	req = withMatchID(req, "1")
	rr := httptest.NewRecorder()
	h.Send(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rr, "VALIDATION_ERROR")
	if len(messages.rows) != 0 {
		t.Fatalf("empty message must not be stored")
	}
}

func TestChatSendRejectsNonParticipant(t *testing.T) {
	h, _ := newChatHandler()

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/chat/1/messages", bytes.NewBufferString(`{"text":"hi"}`)), 3)
	req = withMatchID(req, "1")
	rr := httptest.NewRecorder()
	h.Send(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestChatHistoryOldestFirst(t *testing.T) {
	h, messages := newChatHandler()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	messages.rows = []pgrepo.MessageRecord{
		{ID: "a", Seq: 1, MatchID: 1, FromUserID: 1, Text: "first", SentAt: base, Status: "sent"},
		{ID: "b", Seq: 2, MatchID: 1, FromUserID: 2, Text: "second", SentAt: base.Add(time.Second), Status: "sent"},
	}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/chat/1/messages?limit=10", nil), 1)
	req = withMatchID(req, "1")
	rr := httptest.NewRecorder()
	h.History(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var resp dto.MessagesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "a" || resp.Items[1].ID != "b" {
		t.Fatalf("unexpected history: %+v", resp.Items)
	}
	if !resp.Items[0].IsFromCurrentUser || resp.Items[1].IsFromCurrentUser {
		t.Fatalf("unexpected ownership flags: %+v", resp.Items)
	}
}

func TestChatHistoryRejectsOversizedLimit(t *testing.T) {
	h, _ := newChatHandler()

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/chat/1/messages?limit=500", nil), 1)
	req = withMatchID(req, "1")
	rr := httptest.NewRecorder()
	h.History(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func newChatHandler() (*ChatHandler, *messageStoreStub) {
	h, messages, _ := newChatHandlerWithMatches()
	return h, messages
}

// newChatHandlerWithMatches wires the hub through the matches service, the
// way the application does.
func newChatHandlerWithMatches() (*ChatHandler, *messageStoreStub, *matchStoreStub) {
	store := &matchStoreStub{}
	store.matches = map[int64]pgrepo.MatchRecord{1: {ID: 1, UserID: 1, MatchedUserID: 2}}
	matches := newMatchesService(store)
	messages := &messageStoreStub{}
	hub := chatsvc.NewHub(chatsvc.Dependencies{
		Tx:           txStub{},
		Messages:     messages,
		LastMessage:  matches,
		Participants: matches,
	})
	return NewChatHandler(hub, matches), messages, store
}

type messageStoreStub struct {
	mu   sync.Mutex
	rows []pgrepo.MessageRecord
}

func (s *messageStoreStub) Insert(_ context.Context, _ pgx.Tx, rec pgrepo.MessageRecord) (pgrepo.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Seq = int64(len(s.rows) + 1)
	if rec.ID == "" {
		rec.ID = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.rows = append(s.rows, rec)
	return rec, nil
}

// ListPage returns rows newest first, the way the repository does.
func (s *messageStoreStub) ListPage(_ context.Context, matchID int64, _ string, limit int) ([]pgrepo.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pgrepo.MessageRecord, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if s.rows[i].MatchID == matchID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

func (s *messageStoreStub) LastSentAt(context.Context, int64) (time.Time, error) {
	return time.Time{}, nil
}

func (s *messageStoreStub) MarkRead(context.Context, int64, int64) (int64, error) {
	return 0, nil
}
