package services

import (
  "context"
  "fmt"
  "strings"
  "sync"
  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/gorm"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/repos"
  "github.com/askyenta/yenta-backend/internal/types"
)

const (
  // maxFormatRetries bounds retries for unparseable model output; transport
  // errors are never retried.
  maxFormatRetries = 2
  // historyWindow is how many recent messages enter the prompt.
  historyWindow = 10

  emptySummaryPlaceholder = "No previous context available."
  fallbackReply           = "I'm sorry, I had trouble putting my answer together. Could you say that again?"
)

type ChatTurnResult struct {
  Reply           string
  UpdatedSummary  string
  ProfileStatus   repos.UpsertStatus
}

type HistoryPage struct {
  Messages    []types.ChatMessage
  TotalCount  int
  HasMore     bool
}

type ChatService interface {
  // ChatWithMemory runs one turn: loads the user's memory and profile, asks
  // the model for a reply plus updated summary (with bounded repair retries
  // for malformed output), analyzes the message for profile changes
  // concurrently, persists both, and returns the result. On failure nothing
  // is written.
  ChatWithMemory(ctx context.Context, userID uuid.UUID, message string) (*ChatTurnResult, error)
  GetHistory(ctx context.Context, userID uuid.UUID, limit, offset int) (*HistoryPage, error)
}

type chatService struct {
  db          *gorm.DB
  log         *logger.Logger
  aiClient    AIClient
  memories    repos.ConversationMemoryRepo
  profiles    repos.UserLLMProfileRepo
  profileSvc  ProfileService

  mu          sync.Mutex
  userLocks   map[uuid.UUID]*userLock
}

type userLock struct {
  mu   sync.Mutex
  refs int
}

func NewChatService(
  db *gorm.DB,
  baseLog *logger.Logger,
  aiClient AIClient,
  memoryRepo repos.ConversationMemoryRepo,
  profileRepo repos.UserLLMProfileRepo,
  profileService ProfileService,
) ChatService {
  return &chatService{
    db:         db,
    log:        baseLog.With("service", "ChatService"),
    aiClient:   aiClient,
    memories:   memoryRepo,
    profiles:   profileRepo,
    profileSvc: profileService,
    userLocks:  map[uuid.UUID]*userLock{},
  }
}

// lockUser serializes turns per user so two concurrent requests cannot read
// the same prior memory state and race on the append. Entries are refcounted;
// the returned release drops the lock and evicts the entry once no other turn
// is holding or waiting on it, so the map only holds currently active users.
func (s *chatService) lockUser(userID uuid.UUID) func() {
  s.mu.Lock()
  lock, ok := s.userLocks[userID]
  if !ok {
    lock = &userLock{}
    s.userLocks[userID] = lock
  }
  lock.refs++
  s.mu.Unlock()

  lock.mu.Lock()
  return func() {
    lock.mu.Unlock()
    s.mu.Lock()
    lock.refs--
    if lock.refs == 0 {
      delete(s.userLocks, userID)
    }
    s.mu.Unlock()
  }
}

func (s *chatService) ChatWithMemory(ctx context.Context, userID uuid.UUID, message string) (*ChatTurnResult, error) {
  if userID == uuid.Nil {
    return nil, fmt.Errorf("user id required")
  }
  message = strings.TrimSpace(message)
  if message == "" {
    return nil, fmt.Errorf("message required")
  }

  release := s.lockUser(userID)
  defer release()

  // FETCH_CONTEXT
  memory, err := s.memories.Get(ctx, nil, userID)
  if err != nil {
    return nil, fmt.Errorf("Failed to load conversation memory: %w", err)
  }
  summary := emptySummaryPlaceholder
  history := []types.ChatMessage{}
  if memory != nil {
    if strings.TrimSpace(memory.Summary) != "" {
      summary = memory.Summary
    }
    history, err = repos.DecodeMessages(memory.Messages)
    if err != nil {
      return nil, err
    }
  }

  profile, err := s.profiles.Get(ctx, nil, userID)
  if err != nil {
    return nil, fmt.Errorf("Failed to load user profile: %w", err)
  }
  profileData := map[string]interface{}{}
  if profile != nil {
    profileData, err = repos.DecodeProfileData(profile.ProfileData)
    if err != nil {
      return nil, err
    }
  }

  // CALL_MODEL: the reply/summary completion and the profile analysis only
  // depend on the context fetched above, so both requests go out together.
  var completion chatCompletion
  var analyzedProfile map[string]interface{}
  var profileChanged bool

  g, gctx := errgroup.WithContext(ctx)
  g.Go(func() error {
    var cErr error
    completion, cErr = s.completeTurn(gctx, summary, profileData, history, message)
    return cErr
  })
  g.Go(func() error {
    // Best effort: any failure in here already degraded to "no change".
    if len(profileData) > 0 {
      analyzedProfile, profileChanged = s.profileSvc.AnalyzeForUpdate(gctx, profileData, message)
    } else {
      analyzedProfile, profileChanged = s.profileSvc.AnalyzeForInitialCreation(gctx, message)
    }
    return nil
  })
  if err := g.Wait(); err != nil {
    return nil, err
  }

  reply := strings.TrimSpace(completion.Reply)
  if reply == "" {
    reply = fallbackReply
  }
  updatedSummary := strings.TrimSpace(completion.UpdatedSummary)
  if updatedSummary == "" {
    updatedSummary = summary
  }

  // PERSIST
  if _, err := s.memories.AppendTurn(ctx, nil, userID, message, reply, updatedSummary); err != nil {
    return nil, fmt.Errorf("Failed to persist conversation turn: %w", err)
  }

  profileStatus := repos.UpsertUnchanged
  if profileChanged {
    _, status, upsertErr := s.profiles.Upsert(ctx, nil, userID, analyzedProfile)
    if upsertErr != nil {
      // Profile enrichment never blocks the chat reply.
      s.log.Warn("Failed to persist analyzed profile", "user_id", userID, "error", upsertErr)
    } else {
      profileStatus = status
    }
  }

  return &ChatTurnResult{
    Reply:          reply,
    UpdatedSummary: updatedSummary,
    ProfileStatus:  profileStatus,
  }, nil
}

type chatCompletion struct {
  Reply           string  `json:"reply"`
  UpdatedSummary  string  `json:"updated_summary"`
}

// completeTurn asks the model for the reply/summary payload, retrying only
// when the output cannot be parsed. Each retry folds the previous parse error
// into the system instruction.
func (s *chatService) completeTurn(ctx context.Context, summary string, profileData map[string]interface{}, history []types.ChatMessage, message string) (chatCompletion, error) {
  var lastParseErr error

  for attempt := 0; attempt <= maxFormatRetries; attempt++ {
    retryNote := ""
    if lastParseErr != nil {
      retryNote = lastParseErr.Error()
    }
    prompt := buildChatMessages(summary, profileData, history, message, retryNote)

    raw, err := s.aiClient.Chat(ctx, prompt)
    if err != nil {
      return chatCompletion{}, fmt.Errorf("completion request failed: %w", err)
    }

    var out chatCompletion
    if err := ExtractJSONObject(raw, &out); err != nil {
      lastParseErr = err
      s.log.Warn("Model output unparseable, retrying turn",
        "attempt", attempt+1,
        "max_attempts", maxFormatRetries+1,
        "error", err,
      )
      continue
    }
    return out, nil
  }

  return chatCompletion{}, fmt.Errorf("model output could not be parsed after %d attempts: %w", maxFormatRetries+1, lastParseErr)
}

// buildChatMessages assembles the full prompt: system instruction, the most
// recent history window oldest-first, then the new user message.
func buildChatMessages(summary string, profileData map[string]interface{}, history []types.ChatMessage, message string, retryNote string) []AIMessage {
  messages := []AIMessage{
    {Role: "system", Content: buildChatSystemInstruction(summary, profileData, retryNote)},
  }

  recent := history
  if len(recent) > historyWindow {
    recent = recent[len(recent)-historyWindow:]
  }
  for _, m := range recent {
    messages = append(messages, AIMessage{Role: m.Role, Content: m.Content})
  }

  messages = append(messages, AIMessage{Role: types.RoleUser, Content: message})
  return messages
}

func (s *chatService) GetHistory(ctx context.Context, userID uuid.UUID, limit, offset int) (*HistoryPage, error) {
  if userID == uuid.Nil {
    return nil, fmt.Errorf("user id required")
  }

  page, total, err := s.memories.GetPage(ctx, nil, userID, limit, offset)
  if err != nil {
    return nil, fmt.Errorf("Failed to load conversation history: %w", err)
  }
  return &HistoryPage{
    Messages:   page,
    TotalCount: total,
    HasMore:    total > offset+len(page),
  }, nil
}
