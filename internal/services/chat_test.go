package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/askyenta/yenta-backend/internal/repos"
	"github.com/askyenta/yenta-backend/internal/types"
)

const validCompletion = `{"reply": "Oh honey, tell me more!", "updated_summary": "User opened up about their day."}`
const noProfileAnalysis = `{"profile_data": {}, "should_create": false, "was_updated": false}`

func newChatTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&types.ConversationMemory{}, &types.UserLLMProfile{}); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}
	return db
}

func newChatFixture(t *testing.T, client *fakeAIClient) (ChatService, repos.ConversationMemoryRepo, repos.UserLLMProfileRepo) {
	t.Helper()
	log := testLogger(t)
	db := newChatTestDB(t)
	memoryRepo := repos.NewConversationMemoryRepo(db, log)
	profileRepo := repos.NewUserLLMProfileRepo(db, log)
	profileSvc := NewProfileService(log, client)
	chatSvc := NewChatService(db, log, client, memoryRepo, profileRepo, profileSvc)
	return chatSvc, memoryRepo, profileRepo
}

func TestChatWithMemory_FirstTurn(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs:     []string{validCompletion},
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, memoryRepo, profileRepo := newChatFixture(t, client)
	userID := uuid.New()

	result, err := svc.ChatWithMemory(context.Background(), userID, "Hi Yenta, rough day.")
	if err != nil {
		t.Fatalf("ChatWithMemory failed: %v", err)
	}
	if result.Reply != "Oh honey, tell me more!" {
		t.Fatalf("reply=%q", result.Reply)
	}
	if result.UpdatedSummary == "" {
		t.Fatalf("updated summary is empty")
	}

	memory, err := memoryRepo.Get(context.Background(), nil, userID)
	if err != nil || memory == nil {
		t.Fatalf("memory row missing after first turn: %v", err)
	}
	if memory.Summary == "" {
		t.Fatalf("stored summary is empty")
	}
	messages, err := repos.DecodeMessages(memory.Messages)
	if err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("first turn stored %d messages, want 2", len(messages))
	}
	if messages[0].Role != types.RoleUser || messages[1].Role != types.RoleAssistant {
		t.Fatalf("roles=%q,%q, want user,assistant", messages[0].Role, messages[1].Role)
	}
	if messages[0].Content != "Hi Yenta, rough day." {
		t.Fatalf("user message content=%q", messages[0].Content)
	}

	profile, err := profileRepo.Get(context.Background(), nil, userID)
	if err != nil {
		t.Fatalf("profile get: %v", err)
	}
	if profile != nil {
		t.Fatalf("profile created despite should_create=false")
	}
}

func TestChatWithMemory_TurnsAccumulate(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs:     []string{validCompletion},
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, memoryRepo, _ := newChatFixture(t, client)
	userID := uuid.New()

	const turns = 3
	for i := 0; i < turns; i++ {
		if _, err := svc.ChatWithMemory(context.Background(), userID, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
	}

	memory, err := memoryRepo.Get(context.Background(), nil, userID)
	if err != nil || memory == nil {
		t.Fatalf("memory row missing: %v", err)
	}
	messages, err := repos.DecodeMessages(memory.Messages)
	if err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 2*turns {
		t.Fatalf("stored %d messages after %d turns, want %d", len(messages), turns, 2*turns)
	}
	for i, m := range messages {
		wantRole := types.RoleUser
		if i%2 == 1 {
			wantRole = types.RoleAssistant
		}
		if m.Role != wantRole {
			t.Fatalf("message %d role=%q, want %q", i, m.Role, wantRole)
		}
	}
	for i := 0; i < turns; i++ {
		if messages[2*i].Content != fmt.Sprintf("message %d", i) {
			t.Fatalf("messages out of order: index %d content=%q", 2*i, messages[2*i].Content)
		}
	}
}

func TestChatWithMemory_RetryThenSuccess(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs: []string{
			"definitely not json",
			`{"reply": "broken`,
			validCompletion,
		},
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, memoryRepo, _ := newChatFixture(t, client)
	userID := uuid.New()

	result, err := svc.ChatWithMemory(context.Background(), userID, "hello")
	if err != nil {
		t.Fatalf("ChatWithMemory failed after retries: %v", err)
	}
	if result.Reply != "Oh honey, tell me more!" {
		t.Fatalf("reply=%q", result.Reply)
	}
	if client.chatCalls != 3 {
		t.Fatalf("chatCalls=%d, want 3", client.chatCalls)
	}
	if len(client.chatSystems) != 3 {
		t.Fatalf("captured %d system prompts, want 3", len(client.chatSystems))
	}
	if strings.Contains(client.chatSystems[0], "could not be parsed") {
		t.Fatalf("first attempt already carried a retry note")
	}
	if !strings.Contains(client.chatSystems[1], "could not be parsed") {
		t.Fatalf("retry attempt missing parse-error note in system prompt")
	}

	memory, err := memoryRepo.Get(context.Background(), nil, userID)
	if err != nil || memory == nil {
		t.Fatalf("memory not written after eventual success: %v", err)
	}
}

func TestChatWithMemory_RetriesExhausted(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs:     []string{"garbage", "more garbage", "still garbage"},
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, memoryRepo, _ := newChatFixture(t, client)
	userID := uuid.New()

	if _, err := svc.ChatWithMemory(context.Background(), userID, "hello"); err == nil {
		t.Fatalf("ChatWithMemory succeeded with unparseable output on every attempt")
	}
	if client.chatCalls != 3 {
		t.Fatalf("chatCalls=%d, want 3", client.chatCalls)
	}

	memory, err := memoryRepo.Get(context.Background(), nil, userID)
	if err != nil {
		t.Fatalf("memory get: %v", err)
	}
	if memory != nil {
		t.Fatalf("memory written despite failed turn")
	}
}

func TestChatWithMemory_ConnectionErrorNotRetried(t *testing.T) {
	client := &fakeAIClient{
		chatErr:         errors.New("connection refused"),
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, memoryRepo, _ := newChatFixture(t, client)
	userID := uuid.New()

	if _, err := svc.ChatWithMemory(context.Background(), userID, "hello"); err == nil {
		t.Fatalf("ChatWithMemory succeeded despite connection error")
	}
	if client.chatCalls != 1 {
		t.Fatalf("chatCalls=%d, want 1 (connection errors must not be retried)", client.chatCalls)
	}
	memory, _ := memoryRepo.Get(context.Background(), nil, userID)
	if memory != nil {
		t.Fatalf("memory written despite failed turn")
	}
}

func TestChatWithMemory_MissingFieldsFallBack(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs:     []string{`{}`},
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, memoryRepo, _ := newChatFixture(t, client)
	userID := uuid.New()

	result, err := svc.ChatWithMemory(context.Background(), userID, "hello")
	if err != nil {
		t.Fatalf("ChatWithMemory failed: %v", err)
	}
	if result.Reply == "" || strings.Contains(result.Reply, "{") {
		t.Fatalf("missing reply did not fall back to apology, got %q", result.Reply)
	}
	// With no prior memory the prior summary is the placeholder.
	if result.UpdatedSummary != "No previous context available." {
		t.Fatalf("missing summary did not fall back to prior summary, got %q", result.UpdatedSummary)
	}

	memory, err := memoryRepo.Get(context.Background(), nil, userID)
	if err != nil || memory == nil {
		t.Fatalf("memory row missing: %v", err)
	}
	if memory.Summary == "" {
		t.Fatalf("stored summary is empty")
	}
}

func TestChatWithMemory_InitialProfileCreation(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs: []string{validCompletion},
		generateOutputs: []string{
			`{"profile_data": {"interests": ["hiking"], "occupation": "nurse"}, "should_create": true}`,
		},
	}
	svc, memoryRepo, profileRepo := newChatFixture(t, client)
	userID := uuid.New()

	result, err := svc.ChatWithMemory(context.Background(), userID, "I love hiking and work as a nurse")
	if err != nil {
		t.Fatalf("ChatWithMemory failed: %v", err)
	}
	if result.ProfileStatus != repos.UpsertCreated {
		t.Fatalf("profile status=%q, want %q", result.ProfileStatus, repos.UpsertCreated)
	}

	profile, err := profileRepo.Get(context.Background(), nil, userID)
	if err != nil || profile == nil {
		t.Fatalf("profile row missing after creation turn: %v", err)
	}
	data, err := repos.DecodeProfileData(profile.ProfileData)
	if err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	want := map[string]interface{}{
		"interests":  []interface{}{"hiking"},
		"occupation": "nurse",
	}
	if !reflect.DeepEqual(data, want) {
		t.Fatalf("profile data=%#v, want %#v", data, want)
	}

	// The chat turn persisted in the same request.
	memory, err := memoryRepo.Get(context.Background(), nil, userID)
	if err != nil || memory == nil {
		t.Fatalf("memory row missing alongside created profile: %v", err)
	}
}

func TestChatWithMemory_ProfileAnalysisFailureDoesNotBlockTurn(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs: []string{validCompletion},
		generateErr: errors.New("profile model unreachable"),
	}
	svc, memoryRepo, profileRepo := newChatFixture(t, client)
	userID := uuid.New()

	result, err := svc.ChatWithMemory(context.Background(), userID, "hello")
	if err != nil {
		t.Fatalf("ChatWithMemory failed because of profile analysis: %v", err)
	}
	if result.ProfileStatus != repos.UpsertUnchanged {
		t.Fatalf("profile status=%q, want unchanged", result.ProfileStatus)
	}
	if memory, _ := memoryRepo.Get(context.Background(), nil, userID); memory == nil {
		t.Fatalf("memory not written")
	}
	if profile, _ := profileRepo.Get(context.Background(), nil, userID); profile != nil {
		t.Fatalf("profile written despite analysis failure")
	}
}

func TestChatWithMemory_ConcurrentTurnsSameUser(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs:     []string{validCompletion},
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, memoryRepo, _ := newChatFixture(t, client)
	userID := uuid.New()

	const turns = 8
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := svc.ChatWithMemory(context.Background(), userID, fmt.Sprintf("burst %d", n)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent turn failed: %v", err)
	}

	memory, err := memoryRepo.Get(context.Background(), nil, userID)
	if err != nil || memory == nil {
		t.Fatalf("memory row missing after concurrent turns: %v", err)
	}
	messages, err := repos.DecodeMessages(memory.Messages)
	if err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 2*turns {
		t.Fatalf("stored %d messages after %d concurrent turns, want %d (lost append)", len(messages), turns, 2*turns)
	}
	seen := map[string]bool{}
	for i, m := range messages {
		wantRole := types.RoleUser
		if i%2 == 1 {
			wantRole = types.RoleAssistant
		}
		if m.Role != wantRole {
			t.Fatalf("message %d role=%q, want %q (interleaved turn)", i, m.Role, wantRole)
		}
		if m.Role == types.RoleUser {
			if seen[m.Content] {
				t.Fatalf("user message %q stored twice", m.Content)
			}
			seen[m.Content] = true
		}
	}
	if len(seen) != turns {
		t.Fatalf("stored %d distinct user messages, want %d", len(seen), turns)
	}

	// Locks are released and evicted once the last turn for the user ends.
	cs := svc.(*chatService)
	cs.mu.Lock()
	remaining := len(cs.userLocks)
	cs.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("user lock map holds %d entries after all turns finished", remaining)
	}
}

func TestGetHistory(t *testing.T) {
	client := &fakeAIClient{
		chatOutputs:     []string{validCompletion},
		generateOutputs: []string{noProfileAnalysis},
	}
	svc, _, _ := newChatFixture(t, client)
	userID := uuid.New()

	const turns = 5 // 10 stored messages
	for i := 0; i < turns; i++ {
		if _, err := svc.ChatWithMemory(context.Background(), userID, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
	}

	cases := []struct {
		name        string
		limit       int
		offset      int
		wantLen     int
		wantHasMore bool
		wantFirst   string
	}{
		{name: "latest_page", limit: 4, offset: 0, wantLen: 4, wantHasMore: true, wantFirst: "message 3"},
		{name: "second_page", limit: 4, offset: 4, wantLen: 4, wantHasMore: true, wantFirst: "message 1"},
		{name: "final_partial_page", limit: 4, offset: 8, wantLen: 2, wantHasMore: false, wantFirst: "message 0"},
		{name: "oversized_limit", limit: 50, offset: 0, wantLen: 10, wantHasMore: false, wantFirst: "message 0"},
		{name: "offset_past_end", limit: 4, offset: 10, wantLen: 0, wantHasMore: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := svc.GetHistory(context.Background(), userID, tc.limit, tc.offset)
			if err != nil {
				t.Fatalf("GetHistory failed: %v", err)
			}
			if page.TotalCount != 2*turns {
				t.Fatalf("total=%d, want %d", page.TotalCount, 2*turns)
			}
			if len(page.Messages) != tc.wantLen {
				t.Fatalf("len=%d, want %d", len(page.Messages), tc.wantLen)
			}
			if page.HasMore != tc.wantHasMore {
				t.Fatalf("has_more=%v, want %v", page.HasMore, tc.wantHasMore)
			}
			if tc.wantLen > 0 && page.Messages[0].Content != tc.wantFirst {
				t.Fatalf("first message=%q, want %q", page.Messages[0].Content, tc.wantFirst)
			}
		})
	}
}

func TestGetHistory_NoMemory(t *testing.T) {
	client := &fakeAIClient{}
	svc, _, _ := newChatFixture(t, client)

	page, err := svc.GetHistory(context.Background(), uuid.New(), 10, 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if page.TotalCount != 0 || len(page.Messages) != 0 || page.HasMore {
		t.Fatalf("expected empty page, got %+v", page)
	}
}
