package user

import (
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/generation"
	"chat-gateway/internal/testutil"
	"context"
	"errors"
	"testing"
)

func TestCreateAndAuthenticate(t *testing.T) {
	database := testutil.NewTestDB(t)
	service := NewUserService(database, nil)

	created, err := service.CreateUser(CreateUserRequest{
		Username:  "alice",
		Password:  "s3cret-pass",
		MaxTokens: db.LimitTokens(500),
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if created.PasswordHash == "" || created.PasswordHash == "s3cret-pass" {
		t.Error("password must be stored hashed")
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid", "alice", "s3cret-pass", nil},
		{"wrong password", "alice", "nope", ErrInvalidCredentials},
		{"unknown user", "bob", "s3cret-pass", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := service.Authenticate(tt.username, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if user.ID != created.ID {
				t.Errorf("Authenticate() returned %s, want %s", user.ID, created.ID)
			}
		})
	}

	if _, err := service.CreateUser(CreateUserRequest{Username: "alice", Password: "other-pass"}); !errors.Is(err, db.ErrUserExists) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrUserExists", err)
	}
}

func TestDeleteUser_CancelsGenerationAndCascades(t *testing.T) {
	database := testutil.NewTestDB(t)
	registry := generation.NewRegistry()
	service := NewUserService(database, registry)

	user := testutil.NewTestUser(t, database, "carol", db.LimitTokens(10))
	if _, err := database.CreateConversation(user.ID, "hello"); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	handle := registry.Begin(context.Background(), user.ID)
	defer handle.Release()

	if err := service.DeleteUser(user.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if !handle.Cancelled() {
		t.Error("running generation must be cancelled")
	}
	if _, err := database.GetUser(user.ID); !errors.Is(err, db.ErrUserNotFound) {
		t.Errorf("GetUser() after delete error = %v", err)
	}
	convs, _ := database.GetConversationsByUser(user.ID)
	if len(convs) != 0 {
		t.Errorf("conversations not cascaded: %d left", len(convs))
	}

	if err := service.DeleteUser(user.ID); !errors.Is(err, db.ErrUserNotFound) {
		t.Errorf("second DeleteUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestSetQuotaAndProfile(t *testing.T) {
	database := testutil.NewTestDB(t)
	service := NewUserService(database, nil)
	user := testutil.NewTestUser(t, database, "dave", db.LimitTokens(10))

	updated, err := service.SetQuota(user.ID, db.UnlimitedTokens())
	if err != nil {
		t.Fatalf("SetQuota() error = %v", err)
	}
	if !updated.MaxTokens.IsUnlimited() {
		t.Errorf("MaxTokens = %s, want unlimited", updated.MaxTokens)
	}

	updated, err = service.UpdateProfile(user.ID, db.Profile{DisplayName: "  Dave ", Location: "Berlin", PersonalPrompt: "Be brief."})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.DisplayName != "Dave" || updated.Location != "Berlin" || updated.PersonalPrompt != "Be brief." {
		t.Errorf("unexpected profile: %+v", updated)
	}

	if _, err := service.SetQuota("missing", db.LimitTokens(1)); !errors.Is(err, db.ErrUserNotFound) {
		t.Errorf("SetQuota() unknown user error = %v", err)
	}
}

func TestSeedAdmin(t *testing.T) {
	database := testutil.NewTestDB(t)
	service := NewUserService(database, nil)

	if created, err := service.SeedAdmin("", ""); err != nil || created {
		t.Errorf("SeedAdmin() without credentials = %v, %v", created, err)
	}

	created, err := service.SeedAdmin("admin", "admin-password")
	if err != nil || !created {
		t.Fatalf("SeedAdmin() = %v, %v", created, err)
	}
	admin, err := service.Authenticate("admin", "admin-password")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !admin.IsAdmin || !admin.MaxTokens.IsUnlimited() {
		t.Errorf("seeded admin = %+v", admin)
	}

	if created, err := service.SeedAdmin("other", "other-password"); err != nil || created {
		t.Errorf("SeedAdmin() with existing users = %v, %v", created, err)
	}
}
