package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/dataset"
	"github.com/intelliquery/backend/internal/query"
	"github.com/intelliquery/backend/pkg/logger"
)

type WebSocketHandler struct {
	queryEngine *query.Engine
}

func NewWebSocketHandler(queryEngine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		queryEngine: queryEngine,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
			UserID  string `json:"user_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" || strings.TrimSpace(msg.Content) == "" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		err = h.streamResponse(c, strings.TrimSpace(msg.Content), msg.UserID)
		if errors.Is(err, dataset.ErrNotLoaded) {
			h.sendError(c, "Board data is still loading, please retry shortly")
		} else if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, queryText, userID string) error {
	ctx := context.Background()

	req := query.QueryRequest{
		Query:  queryText,
		UserID: userID,
	}

	if err := h.sendChunk(c, "status", "Analyzing your question..."); err != nil {
		return err
	}

	response, err := h.queryEngine.ProcessQuery(ctx, req)
	if err != nil {
		return err
	}

	words := splitIntoWords(response.Narrative)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, response)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *query.QueryResponse) error {
	msg := map[string]interface{}{
		"type":                 "complete",
		"message_id":           response.ID,
		"intent":               response.Intent.Intent,
		"title":                response.Title,
		"result":               response.Result,
		"clarifying_questions": response.ClarifyingQuestions,
		"used_fallback":        response.UsedFallback,
		"latency_ms":           response.LatencyMS,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Warn("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoWords keeps line breaks as their own tokens so the client can
// rebuild markdown lists from the streamed chunks.
func splitIntoWords(text string) []string {
	words := []string{}
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, char := range text {
		switch char {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(char)
		}
	}
	flush()

	return words
}
