package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewStore()
	// Mask keys containing "password" or "ssn"
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	if err != nil {
		t.Fatal(err)
	}
	secureStore := mw(underlyingStore)
	ctx := context.Background()

	state, audit := newEntity("o-1", 1, domain.Context{"user_password": "kept-in-context"})
	audit.Data = domain.Context{
		"username":      "jdoe",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
	}

	if err := secureStore.Save(ctx, "order", "o-1", state, audit); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Immutability check
	if audit.Data["user_password"] != "secret123" {
		t.Error("Middleware modified the caller's audit entry")
	}

	history, err := underlyingStore.History(ctx, "order", "o-1", 0, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	data := history[0].Data
	if data["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if data["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", data["user_password"])
	}
	details := data["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Errorf("Address shouldn't be masked, got: %v", details["address"])
	}

	loaded, err := secureStore.Load(ctx, "order", "o-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Context["user_password"] != "kept-in-context" {
		t.Error("Entity context must not be masked")
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestChain(t *testing.T) {
	underlyingStore := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"card"})
	if err != nil {
		t.Fatal(err)
	}
	enc := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	store := middleware.Chain(underlyingStore, pii, enc)
	ctx := context.Background()

	state, audit := newEntity("o-1", 1, domain.Context{"total": 10})
	if err := store.Save(ctx, "order", "o-1", state, audit); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	history, err := store.History(ctx, "order", "o-1", 0, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if history[0].Data["card"] != middleware.Mask {
		t.Errorf("Expected card masked before encryption, got %v", history[0].Data["card"])
	}
	if _, ok := history[0].Data["__encrypted__"]; ok {
		t.Error("Expected history to be decrypted by the chain")
	}
}
