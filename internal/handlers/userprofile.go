package handlers

import (
  "fmt"
  "net/http"
  "time"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/repos"
  "github.com/askyenta/yenta-backend/internal/requestdata"
  "github.com/askyenta/yenta-backend/internal/services"
)

type UserProfileHandler struct {
  log             *logger.Logger
  userRepo        repos.UserRepo
  profileRepo     repos.UserLLMProfileRepo
  profileService  services.ProfileService
  summaryCache    services.ProfileSummaryCache
}

func NewUserProfileHandler(
  log *logger.Logger,
  userRepo repos.UserRepo,
  profileRepo repos.UserLLMProfileRepo,
  profileService services.ProfileService,
  summaryCache services.ProfileSummaryCache,
) *UserProfileHandler {
  return &UserProfileHandler{
    log:            log.With("handler", "UserProfileHandler"),
    userRepo:       userRepo,
    profileRepo:    profileRepo,
    profileService: profileService,
    summaryCache:   summaryCache,
  }
}

type profileTextRequest struct {
  Text  string  `json:"text" binding:"required"`
}

type profileResponse struct {
  Status  string                  `json:"status"`
  Profile map[string]interface{}  `json:"profile"`
}

// resolveTargetUser parses the :id path param, enforces self-only access and
// checks the user row exists. Returns uuid.Nil after writing the response on
// any failure.
func (h *UserProfileHandler) resolveTargetUser(c *gin.Context) uuid.UUID {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.UserID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
    return uuid.Nil
  }

  targetID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("invalid user id"))
    return uuid.Nil
  }
  if targetID != rd.UserID {
    RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("Not enough permissions to access other user's profile"))
    return uuid.Nil
  }

  user, err := h.userRepo.GetByID(c.Request.Context(), nil, targetID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "user_lookup_failed", fmt.Errorf("Error looking up user"))
    return uuid.Nil
  }
  if user == nil {
    RespondError(c, http.StatusNotFound, "user_not_found", fmt.Errorf("User not found"))
    return uuid.Nil
  }
  return targetID
}

// POST /api/users/:id/profile-text
// Creates a profile by parsing free text; 409 when one already exists.
func (h *UserProfileHandler) CreateFromText(c *gin.Context) {
  userID := h.resolveTargetUser(c)
  if userID == uuid.Nil {
    return
  }

  var req profileTextRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
    return
  }

  existing, err := h.profileRepo.Get(c.Request.Context(), nil, userID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_lookup_failed", fmt.Errorf("Error looking up profile"))
    return
  }
  if existing != nil {
    RespondError(c, http.StatusConflict, "profile_exists", fmt.Errorf("Profile already exists. Use PUT to update an existing profile."))
    return
  }

  parsed, err := h.profileService.ParseFromText(c.Request.Context(), req.Text)
  if err != nil {
    h.log.Error("Profile parse failed", "user_id", userID, "error", err)
    RespondError(c, http.StatusInternalServerError, "profile_parse_failed", fmt.Errorf("Error parsing profile text"))
    return
  }

  profile, status, err := h.profileRepo.Upsert(c.Request.Context(), nil, userID, parsed)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_save_failed", fmt.Errorf("Error saving profile"))
    return
  }
  data, err := repos.DecodeProfileData(profile.ProfileData)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_decode_failed", fmt.Errorf("Error decoding profile"))
    return
  }
  RespondOK(c, profileResponse{Status: string(status), Profile: data})
}

// PUT /api/users/:id/profile-text
// Merges free text into an existing profile via the model; 404 when absent.
func (h *UserProfileHandler) UpdateFromText(c *gin.Context) {
  userID := h.resolveTargetUser(c)
  if userID == uuid.Nil {
    return
  }

  var req profileTextRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
    return
  }

  existing, err := h.profileRepo.Get(c.Request.Context(), nil, userID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_lookup_failed", fmt.Errorf("Error looking up profile"))
    return
  }
  if existing == nil {
    RespondError(c, http.StatusNotFound, "profile_not_found", fmt.Errorf("Profile not found. Use POST to create a new profile."))
    return
  }

  existingData, err := repos.DecodeProfileData(existing.ProfileData)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_decode_failed", fmt.Errorf("Error decoding profile"))
    return
  }

  merged, err := h.profileService.MergeFromText(c.Request.Context(), existingData, req.Text)
  if err != nil {
    h.log.Error("Profile merge failed", "user_id", userID, "error", err)
    RespondError(c, http.StatusInternalServerError, "profile_merge_failed", fmt.Errorf("Error merging profile text"))
    return
  }

  profile, status, err := h.profileRepo.Upsert(c.Request.Context(), nil, userID, merged)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_save_failed", fmt.Errorf("Error saving profile"))
    return
  }
  data, err := repos.DecodeProfileData(profile.ProfileData)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_decode_failed", fmt.Errorf("Error decoding profile"))
    return
  }
  RespondOK(c, profileResponse{Status: string(status), Profile: data})
}

type profilePatchRequest struct {
  Data  map[string]interface{}  `json:"data" binding:"required"`
}

// PATCH /api/users/:id/profile
// Applies field-level edits directly; null values delete keys.
func (h *UserProfileHandler) Patch(c *gin.Context) {
  userID := h.resolveTargetUser(c)
  if userID == uuid.Nil {
    return
  }

  var req profilePatchRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
    return
  }

  existing, err := h.profileRepo.Get(c.Request.Context(), nil, userID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_lookup_failed", fmt.Errorf("Error looking up profile"))
    return
  }
  if existing == nil {
    RespondError(c, http.StatusNotFound, "profile_not_found", fmt.Errorf("Profile not found"))
    return
  }

  updated, err := repos.DecodeProfileData(existing.ProfileData)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_decode_failed", fmt.Errorf("Error decoding profile"))
    return
  }
  for key, value := range req.Data {
    if value == nil {
      delete(updated, key)
      continue
    }
    updated[key] = value
  }

  profile, status, err := h.profileRepo.Upsert(c.Request.Context(), nil, userID, updated)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_save_failed", fmt.Errorf("Error saving profile"))
    return
  }
  data, err := repos.DecodeProfileData(profile.ProfileData)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_decode_failed", fmt.Errorf("Error decoding profile"))
    return
  }
  RespondOK(c, profileResponse{Status: string(status), Profile: data})
}

type profileSummaryResponse struct {
  UserID          uuid.UUID   `json:"user_id"`
  ProfileSummary  string      `json:"profile_summary"`
  UpdatedAt       time.Time   `json:"updated_at"`
}

// GET /api/users/:id/profile
// Renders the stored profile as prose; 404 when no profile exists.
func (h *UserProfileHandler) Get(c *gin.Context) {
  userID := h.resolveTargetUser(c)
  if userID == uuid.Nil {
    return
  }

  profile, err := h.profileRepo.Get(c.Request.Context(), nil, userID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_lookup_failed", fmt.Errorf("Error looking up profile"))
    return
  }
  if profile == nil {
    RespondError(c, http.StatusNotFound, "profile_not_found", fmt.Errorf("Profile not found"))
    return
  }

  if h.summaryCache != nil {
    if cached, ok := h.summaryCache.Get(c.Request.Context(), userID, profile.UpdatedAt); ok {
      RespondOK(c, profileSummaryResponse{
        UserID:         userID,
        ProfileSummary: cached,
        UpdatedAt:      profile.UpdatedAt,
      })
      return
    }
  }

  data, err := repos.DecodeProfileData(profile.ProfileData)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "profile_decode_failed", fmt.Errorf("Error decoding profile"))
    return
  }

  summary, err := h.profileService.Summarize(c.Request.Context(), data)
  if err != nil {
    h.log.Error("Profile summarize failed", "user_id", userID, "error", err)
    RespondError(c, http.StatusInternalServerError, "profile_summary_failed", fmt.Errorf("Error generating profile summary"))
    return
  }

  if h.summaryCache != nil {
    h.summaryCache.Set(c.Request.Context(), userID, profile.UpdatedAt, summary)
  }

  RespondOK(c, profileSummaryResponse{
    UserID:         userID,
    ProfileSummary: summary,
    UpdatedAt:      profile.UpdatedAt,
  })
}
