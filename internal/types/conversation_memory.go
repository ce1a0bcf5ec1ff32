package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

const (
  RoleUser      = "user"
  RoleAssistant = "assistant"
)

// ChatMessage is one entry of a conversation log. Role is always RoleUser or
// RoleAssistant; insertion order is conversation order.
type ChatMessage struct {
  Role      string    `json:"role"`
  Content   string    `json:"content"`
}

// ConversationMemory holds the hybrid memory for one user: a rolling
// natural-language summary plus the full append-only message log, stored as a
// single jsonb array. One row per user.
type ConversationMemory struct {
  UserID    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
  Summary   string          `gorm:"type:text;not null" json:"summary"`
  Messages  datatypes.JSON  `gorm:"type:jsonb" json:"messages"`
  UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (ConversationMemory) TableName() string {
  return "conversation_memory"
}
