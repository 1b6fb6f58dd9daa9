package auth

import (
	"context"
	"testing"
)

func TestWithActorAndFromContext(t *testing.T) {
	a := Actor{
		TenantID: 2,
		UserID:   1,
		Role:     "admin",
	}

	ctx := WithActor(context.Background(), a)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected Actor in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.TenantID != 2 {
		t.Errorf("TenantID = %d, want 2", got.TenantID)
	}
	if got.Role != "admin" {
		t.Errorf("Role = %q, want %q", got.Role, "admin")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing Actor")
	}
}

func TestTenantID(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{TenantID: 42})
	if TenantID(ctx) != 42 {
		t.Errorf("TenantID = %d, want 42", TenantID(ctx))
	}
	if TenantID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{UserID: 7})
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(WithActor(context.Background(), Actor{Role: "admin"})) {
		t.Error("expected IsAdmin = true for admin role")
	}
	if IsAdmin(WithActor(context.Background(), Actor{Role: "waiter"})) {
		t.Error("expected IsAdmin = false for waiter role")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
