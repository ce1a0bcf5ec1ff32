package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

// UserLLMProfile stores the structured facts the model has inferred about a
// user. The field set is open ended; keys come and go as the model learns.
type UserLLMProfile struct {
  UserID      uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
  ProfileData datatypes.JSON  `gorm:"type:jsonb" json:"profile_data"`
  UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (UserLLMProfile) TableName() string {
  return "user_llm_profile"
}
