package services

import (
  "context"
  "fmt"
  "strings"
  "time"
  goredis "github.com/redis/go-redis/v9"
  "github.com/google/uuid"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/utils"
)

// ProfileSummaryCache keeps rendered profile summaries so repeat profile
// reads skip the model call. Keys include the profile's updated_at, so a
// profile change naturally misses and no explicit invalidation is needed.
type ProfileSummaryCache interface {
  Get(ctx context.Context, userID uuid.UUID, updatedAt time.Time) (string, bool)
  Set(ctx context.Context, userID uuid.UUID, updatedAt time.Time, summary string)
}

type profileSummaryCache struct {
  log  *logger.Logger
  rdb  *goredis.Client
  ttl  time.Duration
}

func NewProfileSummaryCache(log *logger.Logger) (ProfileSummaryCache, error) {
  serviceLog := log.With("service", "ProfileSummaryCache")

  addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
  if addr == "" {
    return nil, fmt.Errorf("missing REDIS_ADDR")
  }
  ttlSec := utils.GetEnvAsInt("PROFILE_SUMMARY_TTL_SECONDS", 3600, log)

  rdb := goredis.NewClient(&goredis.Options{
    Addr:        addr,
    DialTimeout: 5 * time.Second,
  })

  ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
  defer cancel()
  if err := rdb.Ping(ctx).Err(); err != nil {
    _ = rdb.Close()
    return nil, fmt.Errorf("redis ping: %w", err)
  }

  return &profileSummaryCache{
    log: serviceLog,
    rdb: rdb,
    ttl: time.Duration(ttlSec) * time.Second,
  }, nil
}

func summaryCacheKey(userID uuid.UUID, updatedAt time.Time) string {
  return fmt.Sprintf("yenta:profile_summary:%s:%d", userID, updatedAt.UnixNano())
}

func (c *profileSummaryCache) Get(ctx context.Context, userID uuid.UUID, updatedAt time.Time) (string, bool) {
  val, err := c.rdb.Get(ctx, summaryCacheKey(userID, updatedAt)).Result()
  if err != nil {
    if err != goredis.Nil {
      c.log.Warn("Profile summary cache read failed", "user_id", userID, "error", err)
    }
    return "", false
  }
  return val, true
}

func (c *profileSummaryCache) Set(ctx context.Context, userID uuid.UUID, updatedAt time.Time, summary string) {
  if err := c.rdb.Set(ctx, summaryCacheKey(userID, updatedAt), summary, c.ttl).Err(); err != nil {
    c.log.Warn("Profile summary cache write failed", "user_id", userID, "error", err)
  }
}
