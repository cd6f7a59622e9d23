package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/holehole5566/connecthub/internal/domain/enums"
	"github.com/holehole5566/connecthub/internal/domain/model"
	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
	matchessvc "github.com/holehole5566/connecthub/internal/services/matches"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	MaxMessageRunes     = 4000
)

var (
	ErrValidation   = errors.New("validation error")
	ErrEmptyMessage = errors.New("message cannot be empty")
	ErrNotFound     = errors.New("not found")
	ErrNotInRoom    = errors.New("not joined to room")
	ErrStorage      = errors.New("storage error")
	ErrClosed       = errors.New("chat hub is closed")
)

type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type MessageStore interface {
	Insert(ctx context.Context, tx pgx.Tx, rec pgrepo.MessageRecord) (pgrepo.MessageRecord, error)
	ListPage(ctx context.Context, matchID int64, beforeID string, limit int) ([]pgrepo.MessageRecord, error)
	LastSentAt(ctx context.Context, matchID int64) (time.Time, error)
	MarkRead(ctx context.Context, matchID, readerID int64) (int64, error)
}

// LastMessageRecorder advances a match's last message pointer inside the
// transaction that stored the message.
type LastMessageRecorder interface {
	RecordLastMessage(ctx context.Context, tx pgx.Tx, matchID int64, messageID string) error
}

type Participants interface {
	GetForParticipant(ctx context.Context, matchID, userID int64) (model.Match, error)
}

type Dependencies struct {
	Tx           TxManager
	Messages     MessageStore
	LastMessage  LastMessageRecorder
	Participants Participants
	Logger       *zap.Logger
}

type HistoryMessage struct {
	model.Message
	IsFromCurrentUser bool
}

type room struct {
	// sendMu spans persist and fan-out so delivery order equals storage order.
	sendMu     sync.Mutex
	lastSentAt time.Time
	loaded     bool

	mu       sync.RWMutex
	members  map[*Client]struct{}
	inflight int
}

func (r *room) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}

type Hub struct {
	mu          sync.RWMutex
	rooms       map[int64]*room
	memberships map[*Client]map[int64]struct{}
	closed      bool

	tx           TxManager
	messages     MessageStore
	lastMessage  LastMessageRecorder
	participants Participants
	logger       *zap.Logger
	now          func() time.Time
}

func NewHub(deps Dependencies) *Hub {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		rooms:        make(map[int64]*room),
		memberships:  make(map[*Client]map[int64]struct{}),
		tx:           deps.Tx,
		messages:     deps.Messages,
		lastMessage:  deps.LastMessage,
		participants: deps.Participants,
		logger:       logger,
		now:          time.Now,
	}
}

// Register tracks a freshly connected client so Close can reach it before it
// joins any room.
func (h *Hub) Register(c *Client) error {
	if c == nil {
		return ErrValidation
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if _, ok := h.memberships[c]; !ok {
		h.memberships[c] = make(map[int64]struct{})
	}
	return nil
}

// Close disconnects every client and rejects later registrations and joins.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.memberships))
	for c := range h.memberships {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Disconnect(c)
	}
	h.logger.Info("chat hub closed", zap.Int("clients", len(clients)))
}

// Join attaches c to the match room after checking that c's user belongs to
// the match. Joining a room twice is a no-op apart from the acknowledgement.
func (h *Hub) Join(ctx context.Context, c *Client, matchID int64) error {
	if c == nil || matchID <= 0 {
		return ErrValidation
	}
	if err := h.checkParticipant(ctx, matchID, c.UserID); err != nil {
		return err
	}

	select {
	case <-c.Done():
		return nil
	default:
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	r := h.roomLocked(matchID)
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
	rooms, ok := h.memberships[c]
	if !ok {
		rooms = make(map[int64]struct{})
		h.memberships[c] = rooms
	}
	rooms[matchID] = struct{}{}
	h.mu.Unlock()

	h.deliver(c, JoinedEvent(matchID))
	return nil
}

func (h *Hub) Leave(c *Client, matchID int64) {
	if c == nil {
		return
	}

	h.mu.Lock()
	left := h.removeLocked(c, matchID)
	h.mu.Unlock()

	if left {
		h.deliver(c, LeftEvent(matchID))
	}
}

// Disconnect removes c from every room and closes it.
func (h *Hub) Disconnect(c *Client) {
	if c == nil {
		return
	}

	h.mu.Lock()
	for matchID := range h.memberships[c] {
		h.removeLocked(c, matchID)
	}
	delete(h.memberships, c)
	h.mu.Unlock()

	c.Close()
}

// InRoom reports whether c is currently a member of the match room.
func (h *Hub) InRoom(c *Client, matchID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.memberships[c][matchID]
	return ok
}

// Send publishes text from a joined client. Failures are reported to the
// sender only and never broadcast.
func (h *Hub) Send(ctx context.Context, c *Client, matchID int64, text string) (model.Message, error) {
	if c == nil {
		return model.Message{}, ErrValidation
	}
	if !h.InRoom(c, matchID) {
		h.deliver(c, ErrorEvent(CodeNotInRoom, "Join the room before sending"))
		return model.Message{}, ErrNotInRoom
	}

	msg, err := h.Publish(ctx, c.UserID, matchID, text)
	if err != nil {
		h.deliver(c, ErrorEventFor(err))
		return model.Message{}, err
	}
	return msg, nil
}

// Publish persists a message, advances the match's last message pointer in
// the same transaction and fans the message out to the room.
func (h *Hub) Publish(ctx context.Context, senderID, matchID int64, text string) (model.Message, error) {
	if senderID <= 0 || matchID <= 0 {
		return model.Message{}, ErrValidation
	}
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyMessage
	}
	if strings.ContainsRune(text, 0) {
		return model.Message{}, fmt.Errorf("message contains a NUL character: %w", ErrValidation)
	}
	if len([]rune(text)) > MaxMessageRunes {
		return model.Message{}, fmt.Errorf("message longer than %d characters: %w", MaxMessageRunes, ErrValidation)
	}
	if h.tx == nil || h.messages == nil || h.lastMessage == nil {
		return model.Message{}, fmt.Errorf("chat storage is not configured: %w", ErrStorage)
	}

	r := h.acquire(matchID)
	defer h.release(matchID, r)

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if !r.loaded {
		last, err := h.messages.LastSentAt(ctx, matchID)
		if err != nil {
			return model.Message{}, fmt.Errorf("%v: %w", err, ErrStorage)
		}
		r.lastSentAt = last
		r.loaded = true
	}

	// Postgres keeps microseconds; never let a later send sort before an earlier one.
	sentAt := h.now().UTC().Truncate(time.Microsecond)
	if !sentAt.After(r.lastSentAt) {
		sentAt = r.lastSentAt.Add(time.Microsecond)
	}

	var stored pgrepo.MessageRecord
	err := h.tx.WithinTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := h.messages.Insert(txCtx, tx, pgrepo.MessageRecord{
			MatchID:    matchID,
			FromUserID: senderID,
			Text:       text,
			SentAt:     sentAt,
			Status:     string(enums.MessageStatusSent),
		})
		if err != nil {
			return err
		}
		if err := h.lastMessage.RecordLastMessage(txCtx, tx, matchID, rec.ID); err != nil {
			return err
		}
		stored = rec
		return nil
	})
	if err != nil {
		h.logger.Error("persist chat message failed",
			zap.Int64("match_id", matchID),
			zap.Int64("from_user_id", senderID),
			zap.Error(err),
		)
		return model.Message{}, fmt.Errorf("%v: %w", err, ErrStorage)
	}

	r.lastSentAt = stored.SentAt
	msg := mapMessage(stored)
	h.broadcast(r, NewMessageEvent(msg))
	return msg, nil
}

// History returns one page of the conversation, oldest first. beforeID, when
// set, restricts the page to messages older than that message.
func (h *Hub) History(ctx context.Context, userID, matchID int64, limit int, beforeID string) ([]HistoryMessage, error) {
	if userID <= 0 || matchID <= 0 {
		return nil, ErrValidation
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return nil, fmt.Errorf("limit must be <= %d: %w", MaxHistoryLimit, ErrValidation)
	}
	if err := h.checkParticipant(ctx, matchID, userID); err != nil {
		return nil, err
	}

	rows, err := h.messages.ListPage(ctx, matchID, beforeID, limit)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMessageNotFound) {
			return nil, fmt.Errorf("cursor message: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, ErrStorage)
	}

	out := make([]HistoryMessage, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = HistoryMessage{
			Message:           mapMessage(row),
			IsFromCurrentUser: row.FromUserID == userID,
		}
	}
	return out, nil
}

// MarkRead marks every message the other participant sent as read.
func (h *Hub) MarkRead(ctx context.Context, userID, matchID int64) (int64, error) {
	if err := h.checkParticipant(ctx, matchID, userID); err != nil {
		return 0, err
	}
	n, err := h.messages.MarkRead(ctx, matchID, userID)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrStorage)
	}
	return n, nil
}

func (h *Hub) checkParticipant(ctx context.Context, matchID, userID int64) error {
	if h.participants == nil {
		return nil
	}
	if _, err := h.participants.GetForParticipant(ctx, matchID, userID); err != nil {
		if errors.Is(err, matchessvc.ErrNotFound) || errors.Is(err, matchessvc.ErrValidation) {
			return ErrNotFound
		}
		return fmt.Errorf("%v: %w", err, ErrStorage)
	}
	return nil
}

func (h *Hub) broadcast(r *room, ev Event) {
	var slow []*Client
	for _, c := range r.snapshot() {
		if !c.enqueue(ev) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.logger.Warn("evicting slow chat client", zap.Int64("user_id", c.UserID))
		h.Disconnect(c)
	}
}

// Notify queues ev for c alone.
func (h *Hub) Notify(c *Client, ev Event) {
	if c == nil {
		return
	}
	h.deliver(c, ev)
}

// deliver sends to one client and evicts it if its queue is full.
func (h *Hub) deliver(c *Client, ev Event) {
	if c.enqueue(ev) {
		return
	}
	select {
	case <-c.Done():
	default:
		h.logger.Warn("evicting slow chat client", zap.Int64("user_id", c.UserID))
		h.Disconnect(c)
	}
}

// acquire returns the room for matchID and pins it until release.
func (h *Hub) acquire(matchID int64) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.roomLocked(matchID)
	r.inflight++
	return r
}

func (h *Hub) release(matchID int64, r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.inflight--
	h.dropIfIdleLocked(matchID, r)
}

func (h *Hub) roomLocked(matchID int64) *room {
	r, ok := h.rooms[matchID]
	if !ok {
		r = &room{members: make(map[*Client]struct{})}
		h.rooms[matchID] = r
	}
	return r
}

func (h *Hub) removeLocked(c *Client, matchID int64) bool {
	rooms := h.memberships[c]
	if _, ok := rooms[matchID]; !ok {
		return false
	}
	delete(rooms, matchID)

	if r, ok := h.rooms[matchID]; ok {
		r.mu.Lock()
		delete(r.members, c)
		r.mu.Unlock()
		h.dropIfIdleLocked(matchID, r)
	}
	return true
}

func (h *Hub) dropIfIdleLocked(matchID int64, r *room) {
	r.mu.RLock()
	empty := len(r.members) == 0
	r.mu.RUnlock()
	if empty && r.inflight == 0 && h.rooms[matchID] == r {
		delete(h.rooms, matchID)
	}
}

// ErrorEventFor maps a hub error to the event reported to the sender.
func ErrorEventFor(err error) Event {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return ErrorEvent(CodeValidation, "Message cannot be empty")
	case errors.Is(err, ErrValidation):
		return ErrorEvent(CodeValidation, err.Error())
	case errors.Is(err, ErrNotFound):
		return ErrorEvent(CodeNotFound, "Match not found")
	case errors.Is(err, ErrNotInRoom):
		return ErrorEvent(CodeNotInRoom, "Join the room before sending")
	case errors.Is(err, ErrClosed):
		return ErrorEvent(CodeUnavailable, "Chat is shutting down")
	default:
		return ErrorEvent(CodeStorage, "Failed to save message")
	}
}

func mapMessage(rec pgrepo.MessageRecord) model.Message {
	return model.Message{
		ID:         rec.ID,
		Seq:        rec.Seq,
		MatchID:    rec.MatchID,
		FromUserID: rec.FromUserID,
		Text:       rec.Text,
		SentAt:     rec.SentAt,
		Status:     enums.MessageStatus(rec.Status),
	}
}
