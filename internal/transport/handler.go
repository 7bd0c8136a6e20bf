// Package transport exposes the chat session over HTTP and gRPC health.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/service/sender"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBodyBytes   = 4 << 10
	requestTimeout = 90 * time.Second
)

// ChatHandler serves the chat session.
type ChatHandler struct {
	logger *zap.Logger
	chat   Chat
	names  Names
}

// NewChatHandler returns a ChatHandler. names may be nil, in which case
// senders are shown by address.
func NewChatHandler(chat Chat, names Names, logger *zap.Logger) (*ChatHandler, error) {
	if chat == nil {
		return nil, errors.New("chat is required")
	}
	return &ChatHandler{logger: logger, chat: chat, names: names}, nil
}

// Routes returns the CORS wrapped mux with every endpoint and /metrics.
func (h *ChatHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed", h.feed)
	mux.HandleFunc("GET /status", h.status)
	mux.HandleFunc("GET /cooldown", h.cooldown)
	mux.HandleFunc("POST /messages", h.send)
	mux.HandleFunc("POST /messages/more", h.loadMore)
	mux.HandleFunc("POST /messages/check", h.checkPending)
	mux.HandleFunc("POST /network/switch", h.switchNetwork)
	mux.Handle("/metrics", promhttp.Handler())
	return cors.Default().Handler(mux)
}

type messageDTO struct {
	ID          uint64 `json:"id"`
	Sender      string `json:"sender"`
	DisplayName string `json:"displayName"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	State       string `json:"state"`
	AttemptID   string `json:"attemptId,omitempty"`
}

type feedResponse struct {
	Messages  []messageDTO `json:"messages"`
	Total     uint64       `json:"total"`
	HasMore   bool         `json:"hasMore"`
	Loading   bool         `json:"loading"`
	Sending   bool         `json:"sending"`
	Network   string       `json:"network"`
	Cooldown  uint64       `json:"cooldown"`
	LastError string       `json:"lastError,omitempty"`
}

type statusResponse struct {
	Network  string `json:"network"`
	Total    uint64 `json:"total"`
	Sending  bool   `json:"sending"`
	Cooldown uint64 `json:"cooldown"`
}

type sendRequest struct {
	Content string `json:"content"`
}

type sendResponse struct {
	AttemptID string      `json:"attemptId"`
	State     string      `json:"state"`
	TxHash    string      `json:"txHash,omitempty"`
	Message   *messageDTO `json:"message,omitempty"`
	History   []string    `json:"history"`
	Error     string      `json:"error,omitempty"`
}

func (h *ChatHandler) feed(w http.ResponseWriter, r *http.Request) {
	view := h.chat.Snapshot()
	names := h.displayNames(r.Context(), view.Messages)

	resp := feedResponse{
		Messages:  make([]messageDTO, 0, len(view.Messages)),
		Total:     view.Total,
		HasMore:   view.HasMore,
		Loading:   view.Loading,
		Sending:   view.Sending,
		Network:   string(view.Network),
		Cooldown:  view.Cooldown,
		LastError: view.LastError,
	}
	for _, msg := range view.Messages {
		resp.Messages = append(resp.Messages, toDTO(msg, names))
	}
	h.write(w, http.StatusOK, resp)
}

func (h *ChatHandler) status(w http.ResponseWriter, _ *http.Request) {
	view := h.chat.Snapshot()
	h.write(w, http.StatusOK, statusResponse{
		Network:  string(view.Network),
		Total:    view.Total,
		Sending:  view.Sending,
		Cooldown: view.Cooldown,
	})
}

func (h *ChatHandler) cooldown(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.write(w, http.StatusBadRequest, errorResponse{Error: "address is required", Kind: "bad_request"})
		return
	}
	h.write(w, http.StatusOK, map[string]uint64{"seconds": h.chat.CheckCooldown(r.Context(), address)})
}

func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.write(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.chat.Send(ctx, req.Content)
	if err != nil && model.KindOf(err) != model.KindConfirmationTimeout {
		h.writeError(w, err)
		return
	}

	resp := sendResponse{
		AttemptID: res.AttemptID,
		State:     res.State.String(),
		TxHash:    res.TxHash,
		History:   historyOf(res.History),
	}
	if res.Message.Content != "" {
		names := h.displayNames(r.Context(), []model.Message{res.Message})
		dto := toDTO(res.Message, names)
		resp.Message = &dto
	}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = http.StatusAccepted
	}
	h.write(w, code, resp)
}

func (h *ChatHandler) loadMore(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.LoadMore(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.feed(w, r)
}

func (h *ChatHandler) checkPending(w http.ResponseWriter, r *http.Request) {
	res, err := h.chat.CheckPending(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, http.StatusOK, map[string]int{"settled": res.Settled, "evicted": res.Evicted})
}

func (h *ChatHandler) switchNetwork(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.SwitchNetwork(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.status(w, r)
}

func (h *ChatHandler) displayNames(ctx context.Context, msgs []model.Message) map[string]string {
	if h.names == nil || len(msgs) == 0 {
		return nil
	}
	addresses := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		addresses = append(addresses, msg.Sender)
	}
	return h.names.ResolveAll(ctx, addresses)
}

func (h *ChatHandler) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.write(w, code, newErrorResponse(err))
}

func (h *ChatHandler) write(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("response not written", zap.Error(err))
	}
}

func toDTO(msg model.Message, names map[string]string) messageDTO {
	name, ok := names[model.NormalizeAddress(msg.Sender)]
	if !ok {
		name = model.ShortAddress(msg.Sender)
	}
	return messageDTO{
		ID:          msg.ID,
		Sender:      msg.Sender,
		DisplayName: name,
		Content:     msg.Content,
		Timestamp:   msg.Timestamp,
		State:       msg.State.String(),
		AttemptID:   msg.AttemptID,
	}
}

func historyOf(states []sender.State) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, s.String())
	}
	return out
}
