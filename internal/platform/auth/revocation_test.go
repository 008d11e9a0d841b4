package auth

import (
	"sync"
	"testing"
	"time"
)

func TestRevoke_and_IsRevoked(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	store.Revoke("token-abc-123", time.Now().Add(time.Hour))
	if !store.IsRevoked("token-abc-123") {
		t.Error("expected token to be revoked")
	}
	if store.IsRevoked("unknown") {
		t.Error("expected unknown token to not be revoked")
	}
}

func TestRevoke_IgnoresEmptyID(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	store.Revoke("", time.Now().Add(time.Hour))
	if store.Count() != 0 {
		t.Errorf("expected empty id to be ignored, count=%d", store.Count())
	}
}

func TestCleanup_RemovesExpired(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Revoke("expired", now.Add(-time.Minute))
	store.Revoke("live", now.Add(time.Hour))
	store.cleanup()

	if store.IsRevoked("expired") {
		t.Error("expected expired entry to be cleaned up")
	}
	if !store.IsRevoked("live") {
		t.Error("expected live entry to remain")
	}
}

func TestClose_Idempotent(t *testing.T) {
	store := NewTokenRevocationStore(time.Minute)
	store.Close()
	store.Close()
}

func TestConcurrentRevokeAndCheck(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		id := string(rune('a' + i%26))
		go func() {
			defer wg.Done()
			store.Revoke(id, time.Now().Add(time.Hour))
		}()
		go func() {
			defer wg.Done()
			store.IsRevoked(id)
		}()
	}
	wg.Wait()

	if store.Count() != 26 {
		t.Errorf("expected 26 distinct revoked ids, got %d", store.Count())
	}
}
