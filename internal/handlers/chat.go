package handlers

import (
  "fmt"
  "net/http"
  "strconv"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/requestdata"
  "github.com/askyenta/yenta-backend/internal/services"
  "github.com/askyenta/yenta-backend/internal/types"
)

type ChatHandler struct {
  log         *logger.Logger
  chatService services.ChatService
}

func NewChatHandler(log *logger.Logger, chatService services.ChatService) *ChatHandler {
  return &ChatHandler{
    log:         log.With("handler", "ChatHandler"),
    chatService: chatService,
  }
}

type chatTurnRequest struct {
  Message   string  `json:"message" binding:"required"`
}

type chatTurnResponse struct {
  Reply           string  `json:"reply"`
  UpdatedSummary  string  `json:"updated_summary"`
}

// POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.UserID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
    return
  }

  var req chatTurnRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
    return
  }

  result, err := h.chatService.ChatWithMemory(c.Request.Context(), rd.UserID, req.Message)
  if err != nil {
    h.log.Error("Chat turn failed", "user_id", rd.UserID, "error", err)
    RespondError(c, http.StatusInternalServerError, "chat_failed", fmt.Errorf("Error processing request"))
    return
  }

  RespondOK(c, chatTurnResponse{
    Reply:          result.Reply,
    UpdatedSummary: result.UpdatedSummary,
  })
}

type chatHistoryResponse struct {
  Messages    []types.ChatMessage  `json:"messages"`
  TotalCount  int                  `json:"total_count"`
  HasMore     bool                 `json:"has_more"`
}

// GET /api/chat/history?limit=10&offset=0
func (h *ChatHandler) GetHistory(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.UserID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
    return
  }

  limit := parseQueryInt(c, "limit", 10)
  if limit < 1 {
    limit = 1
  }
  if limit > 50 {
    limit = 50
  }
  offset := parseQueryInt(c, "offset", 0)
  if offset < 0 {
    offset = 0
  }

  page, err := h.chatService.GetHistory(c.Request.Context(), rd.UserID, limit, offset)
  if err != nil {
    h.log.Error("Chat history fetch failed", "user_id", rd.UserID, "error", err)
    RespondError(c, http.StatusInternalServerError, "history_failed", fmt.Errorf("Error fetching history"))
    return
  }

  RespondOK(c, chatHistoryResponse{
    Messages:   page.Messages,
    TotalCount: page.TotalCount,
    HasMore:    page.HasMore,
  })
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
  raw := c.Query(key)
  if raw == "" {
    return defaultVal
  }
  v, err := strconv.Atoi(raw)
  if err != nil {
    return defaultVal
  }
  return v
}
