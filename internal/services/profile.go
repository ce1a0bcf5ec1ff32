package services

import (
  "context"
  "fmt"
  "strings"
  "github.com/askyenta/yenta-backend/internal/logger"
)

// ProfileService turns free text into structured profile data. The chat-path
// analyzers (AnalyzeForUpdate, AnalyzeForInitialCreation) never fail a turn:
// any parse or transport problem degrades to "no change". The endpoint-path
// operations (ParseFromText, Summarize) surface their errors instead.
type ProfileService interface {
  AnalyzeForUpdate(ctx context.Context, existing map[string]interface{}, message string) (map[string]interface{}, bool)
  AnalyzeForInitialCreation(ctx context.Context, message string) (map[string]interface{}, bool)
  ParseFromText(ctx context.Context, text string) (map[string]interface{}, error)
  MergeFromText(ctx context.Context, existing map[string]interface{}, text string) (map[string]interface{}, error)
  Summarize(ctx context.Context, data map[string]interface{}) (string, error)
}

type profileService struct {
  log       *logger.Logger
  aiClient  AIClient
}

func NewProfileService(log *logger.Logger, ai AIClient) ProfileService {
  return &profileService{
    log:      log.With("service", "ProfileService"),
    aiClient: ai,
  }
}

type profileUpdateResult struct {
  ProfileData map[string]interface{} `json:"profile_data"`
  WasUpdated  bool                   `json:"was_updated"`
}

func (ps *profileService) AnalyzeForUpdate(ctx context.Context, existing map[string]interface{}, message string) (map[string]interface{}, bool) {
  if existing == nil {
    existing = map[string]interface{}{}
  }

  raw, err := ps.aiClient.Generate(ctx, buildProfileUpdatePrompt(existing, message))
  if err != nil {
    ps.log.Warn("Profile update analysis call failed, keeping existing profile", "error", err)
    return existing, false
  }

  var result profileUpdateResult
  if err := ExtractJSONObject(raw, &result); err != nil {
    ps.log.Warn("Profile update analysis output unparseable, keeping existing profile", "error", err)
    return existing, false
  }
  if !result.WasUpdated || result.ProfileData == nil {
    return existing, false
  }
  return result.ProfileData, true
}

type profileCreationResult struct {
  ProfileData   map[string]interface{} `json:"profile_data"`
  ShouldCreate  bool                   `json:"should_create"`
}

func (ps *profileService) AnalyzeForInitialCreation(ctx context.Context, message string) (map[string]interface{}, bool) {
  raw, err := ps.aiClient.Generate(ctx, buildProfileCreationPrompt(message))
  if err != nil {
    ps.log.Warn("Profile creation analysis call failed, skipping", "error", err)
    return map[string]interface{}{}, false
  }

  var result profileCreationResult
  if err := ExtractJSONObject(raw, &result); err != nil {
    ps.log.Warn("Profile creation analysis output unparseable, skipping", "error", err)
    return map[string]interface{}{}, false
  }
  if !result.ShouldCreate || len(result.ProfileData) == 0 {
    return map[string]interface{}{}, false
  }
  return result.ProfileData, true
}

func (ps *profileService) ParseFromText(ctx context.Context, text string) (map[string]interface{}, error) {
  raw, err := ps.aiClient.Generate(ctx, buildProfileParsePrompt(text))
  if err != nil {
    return nil, err
  }
  data, err := ExtractJSONMap(raw)
  if err != nil {
    return nil, fmt.Errorf("Failed to parse profile from model output: %w", err)
  }
  return data, nil
}

func (ps *profileService) MergeFromText(ctx context.Context, existing map[string]interface{}, text string) (map[string]interface{}, error) {
  if existing == nil {
    existing = map[string]interface{}{}
  }

  raw, err := ps.aiClient.Generate(ctx, buildProfileMergePrompt(existing, text))
  if err != nil {
    return nil, err
  }

  // Unparseable merge output returns the existing profile untouched rather
  // than risking data loss.
  merged, err := ExtractJSONMap(raw)
  if err != nil {
    ps.log.Warn("Profile merge output unparseable, keeping existing profile", "error", err)
    return existing, nil
  }
  return merged, nil
}

func (ps *profileService) Summarize(ctx context.Context, data map[string]interface{}) (string, error) {
  raw, err := ps.aiClient.Generate(ctx, buildProfileSummaryPrompt(data))
  if err != nil {
    return "", err
  }
  summary := strings.TrimSpace(raw)
  if summary == "" {
    return "", fmt.Errorf("model returned an empty profile summary")
  }
  return summary, nil
}
