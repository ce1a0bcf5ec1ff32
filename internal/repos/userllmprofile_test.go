package repos

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUserLLMProfileRepo_GetAbsent(t *testing.T) {
	repo := NewUserLLMProfileRepo(newTestDB(t), testLogger(t))

	profile, err := repo.Get(context.Background(), nil, uuid.New())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if profile != nil {
		t.Fatalf("Get returned a row for a user with no profile: %+v", profile)
	}
}

func TestUserLLMProfileRepo_UpsertCreatesThenSkipsIdenticalData(t *testing.T) {
	repo := NewUserLLMProfileRepo(newTestDB(t), testLogger(t))
	userID := uuid.New()
	data := map[string]interface{}{
		"occupation": "nurse",
		"interests":  []interface{}{"hiking", "pottery"},
	}

	profile, status, err := repo.Upsert(context.Background(), nil, userID, data)
	if err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	if status != UpsertCreated {
		t.Fatalf("first status=%q, want %q", status, UpsertCreated)
	}
	firstUpdatedAt := profile.UpdatedAt

	// Same content, rebuilt from scratch so key order and value identity differ.
	same := map[string]interface{}{
		"interests":  []interface{}{"hiking", "pottery"},
		"occupation": "nurse",
	}
	profile, status, err = repo.Upsert(context.Background(), nil, userID, same)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if status != UpsertUnchanged {
		t.Fatalf("second status=%q, want %q", status, UpsertUnchanged)
	}
	if !profile.UpdatedAt.Equal(firstUpdatedAt) {
		t.Fatalf("updated_at bumped on an unchanged write: %v -> %v", firstUpdatedAt, profile.UpdatedAt)
	}

	stored, err := repo.Get(context.Background(), nil, userID)
	if err != nil || stored == nil {
		t.Fatalf("Get failed: %v", err)
	}
	decoded, err := DecodeProfileData(stored.ProfileData)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, data) {
		t.Fatalf("stored data=%v, want %v", decoded, data)
	}
}

func TestUserLLMProfileRepo_UpsertUpdatesChangedData(t *testing.T) {
	repo := NewUserLLMProfileRepo(newTestDB(t), testLogger(t))
	userID := uuid.New()

	profile, _, err := repo.Upsert(context.Background(), nil, userID, map[string]interface{}{"occupation": "nurse"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	firstUpdatedAt := profile.UpdatedAt

	time.Sleep(5 * time.Millisecond)

	changed := map[string]interface{}{"occupation": "nurse", "city": "Portland"}
	profile, status, err := repo.Upsert(context.Background(), nil, userID, changed)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if status != UpsertUpdated {
		t.Fatalf("status=%q, want %q", status, UpsertUpdated)
	}
	if !profile.UpdatedAt.After(firstUpdatedAt) {
		t.Fatalf("updated_at not bumped: %v -> %v", firstUpdatedAt, profile.UpdatedAt)
	}

	stored, err := repo.Get(context.Background(), nil, userID)
	if err != nil || stored == nil {
		t.Fatalf("Get failed: %v", err)
	}
	decoded, err := DecodeProfileData(stored.ProfileData)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, changed) {
		t.Fatalf("stored data=%v, want %v", decoded, changed)
	}
}

func TestUserLLMProfileRepo_UpsertNilDataStoresEmptyObject(t *testing.T) {
	repo := NewUserLLMProfileRepo(newTestDB(t), testLogger(t))
	userID := uuid.New()

	_, status, err := repo.Upsert(context.Background(), nil, userID, nil)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if status != UpsertCreated {
		t.Fatalf("status=%q, want %q", status, UpsertCreated)
	}

	stored, err := repo.Get(context.Background(), nil, userID)
	if err != nil || stored == nil {
		t.Fatalf("Get failed: %v", err)
	}
	decoded, err := DecodeProfileData(stored.ProfileData)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("stored data=%v, want empty", decoded)
	}
}
