package repos

import (
  "context"
  "encoding/json"
  "fmt"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/types"
)

type ConversationMemoryRepo interface {
  // Get returns the user's memory row, or nil when the user has never chatted.
  Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.ConversationMemory, error)
  // GetPage returns limit messages ending offset from the most recent, in
  // chronological order, plus the total stored message count.
  GetPage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]types.ChatMessage, int, error)
  // AppendTurn creates the row if absent, appends the user and assistant
  // messages in that order, overwrites the summary and bumps updated_at.
  // The whole turn is written in one transaction.
  AppendTurn(ctx context.Context, tx *gorm.DB, userID uuid.UUID, userMessage, assistantReply, newSummary string) (*types.ConversationMemory, error)
}

type conversationMemoryRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewConversationMemoryRepo(db *gorm.DB, baseLog *logger.Logger) ConversationMemoryRepo {
  repoLog := baseLog.With("repo", "ConversationMemoryRepo")
  return &conversationMemoryRepo{db: db, log: repoLog}
}

func (cr *conversationMemoryRepo) Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.ConversationMemory, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  var results []*types.ConversationMemory
  if err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}

func (cr *conversationMemoryRepo) GetPage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]types.ChatMessage, int, error) {
  memory, err := cr.Get(ctx, tx, userID)
  if err != nil {
    return nil, 0, err
  }
  if memory == nil {
    return []types.ChatMessage{}, 0, nil
  }

  messages, err := DecodeMessages(memory.Messages)
  if err != nil {
    return nil, 0, err
  }
  total := len(messages)
  if total == 0 {
    return []types.ChatMessage{}, 0, nil
  }
  if limit < 0 {
    limit = 0
  }
  if offset < 0 {
    offset = 0
  }

  // Window ends offset from the most recent message; returned oldest-first.
  start := total - offset - limit
  if start < 0 {
    start = 0
  }
  end := total - offset
  if end < 0 {
    end = 0
  }
  return messages[start:end], total, nil
}

func (cr *conversationMemoryRepo) AppendTurn(ctx context.Context, tx *gorm.DB, userID uuid.UUID, userMessage, assistantReply, newSummary string) (*types.ConversationMemory, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  var memory *types.ConversationMemory
  err := transaction.WithContext(ctx).Transaction(func(innerTx *gorm.DB) error {
    existing, err := cr.Get(ctx, innerTx, userID)
    if err != nil {
      return err
    }

    created := false
    if existing == nil {
      created = true
      existing = &types.ConversationMemory{
        UserID:    userID,
        Summary:   "",
        Messages:  datatypes.JSON([]byte(`[]`)),
        UpdatedAt: time.Now().UTC(),
      }
    }

    messages, err := DecodeMessages(existing.Messages)
    if err != nil {
      return err
    }
    messages = append(messages,
      types.ChatMessage{Role: types.RoleUser, Content: userMessage},
      types.ChatMessage{Role: types.RoleAssistant, Content: assistantReply},
    )
    raw, err := json.Marshal(messages)
    if err != nil {
      return err
    }

    existing.Messages = datatypes.JSON(raw)
    existing.Summary = newSummary
    existing.UpdatedAt = time.Now().UTC()

    if created {
      if err := innerTx.Create(existing).Error; err != nil {
        return fmt.Errorf("Failed to create conversation memory: %w", err)
      }
    } else {
      if err := innerTx.Model(&types.ConversationMemory{}).
        Where("user_id = ?", userID).
        Updates(map[string]interface{}{
          "messages":   existing.Messages,
          "summary":    existing.Summary,
          "updated_at": existing.UpdatedAt,
        }).Error; err != nil {
        return fmt.Errorf("Failed to update conversation memory: %w", err)
      }
    }
    memory = existing
    return nil
  })
  if err != nil {
    return nil, err
  }
  return memory, nil
}

// DecodeMessages unpacks a stored jsonb message array. A nil or empty column
// decodes to an empty slice.
func DecodeMessages(raw datatypes.JSON) ([]types.ChatMessage, error) {
  if len(raw) == 0 {
    return []types.ChatMessage{}, nil
  }
  var messages []types.ChatMessage
  if err := json.Unmarshal(raw, &messages); err != nil {
    return nil, fmt.Errorf("Failed to decode conversation messages: %w", err)
  }
  if messages == nil {
    messages = []types.ChatMessage{}
  }
  return messages, nil
}
