package repos

import (
  "context"
  "encoding/json"
  "fmt"
  "reflect"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/types"
)

// UpsertStatus reports what an Upsert call actually did to the row.
type UpsertStatus string

const (
  UpsertCreated   UpsertStatus = "created"
  UpsertUpdated   UpsertStatus = "updated"
  UpsertUnchanged UpsertStatus = "unchanged"
)

type UserLLMProfileRepo interface {
  // Get returns the user's profile row, or nil when none exists.
  Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserLLMProfile, error)
  // Upsert writes profileData for the user. The row is only written (and the
  // timestamp only bumped) when the data structurally differs from what is
  // stored.
  Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, profileData map[string]interface{}) (*types.UserLLMProfile, UpsertStatus, error)
}

type userLLMProfileRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserLLMProfileRepo(db *gorm.DB, baseLog *logger.Logger) UserLLMProfileRepo {
  repoLog := baseLog.With("repo", "UserLLMProfileRepo")
  return &userLLMProfileRepo{db: db, log: repoLog}
}

func (pr *userLLMProfileRepo) Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserLLMProfile, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  var results []*types.UserLLMProfile
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

func (pr *userLLMProfileRepo) Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, profileData map[string]interface{}) (*types.UserLLMProfile, UpsertStatus, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  if profileData == nil {
    profileData = map[string]interface{}{}
  }
  raw, err := json.Marshal(profileData)
  if err != nil {
    return nil, "", fmt.Errorf("Failed to encode profile data: %w", err)
  }

  var profile *types.UserLLMProfile
  var status UpsertStatus
  err = transaction.WithContext(ctx).Transaction(func(innerTx *gorm.DB) error {
    existing, err := pr.Get(ctx, innerTx, userID)
    if err != nil {
      return err
    }

    if existing == nil {
      profile = &types.UserLLMProfile{
        UserID:      userID,
        ProfileData: datatypes.JSON(raw),
        UpdatedAt:   time.Now().UTC(),
      }
      if err := innerTx.Create(profile).Error; err != nil {
        return fmt.Errorf("Failed to create user llm profile: %w", err)
      }
      status = UpsertCreated
      return nil
    }

    same, err := profileDataEqual(existing.ProfileData, raw)
    if err != nil {
      return err
    }
    if same {
      profile = existing
      status = UpsertUnchanged
      return nil
    }

    existing.ProfileData = datatypes.JSON(raw)
    existing.UpdatedAt = time.Now().UTC()
    if err := innerTx.Model(&types.UserLLMProfile{}).
      Where("user_id = ?", userID).
      Updates(map[string]interface{}{
        "profile_data": existing.ProfileData,
        "updated_at":   existing.UpdatedAt,
      }).Error; err != nil {
      return fmt.Errorf("Failed to update user llm profile: %w", err)
    }
    profile = existing
    status = UpsertUpdated
    return nil
  })
  if err != nil {
    return nil, "", err
  }
  return profile, status, nil
}

// profileDataEqual deep-compares two encoded profile documents. Both sides
// are decoded first so key order and whitespace never count as a difference.
func profileDataEqual(stored datatypes.JSON, incoming []byte) (bool, error) {
  storedMap, err := DecodeProfileData(stored)
  if err != nil {
    return false, err
  }
  var incomingMap map[string]interface{}
  if err := json.Unmarshal(incoming, &incomingMap); err != nil {
    return false, fmt.Errorf("Failed to decode incoming profile data: %w", err)
  }
  if incomingMap == nil {
    incomingMap = map[string]interface{}{}
  }
  return reflect.DeepEqual(storedMap, incomingMap), nil
}

// DecodeProfileData unpacks a stored jsonb profile document. A nil or empty
// column decodes to an empty map.
func DecodeProfileData(raw datatypes.JSON) (map[string]interface{}, error) {
  if len(raw) == 0 {
    return map[string]interface{}{}, nil
  }
  var data map[string]interface{}
  if err := json.Unmarshal(raw, &data); err != nil {
    return nil, fmt.Errorf("Failed to decode profile data: %w", err)
  }
  if data == nil {
    data = map[string]interface{}{}
  }
  return data, nil
}
