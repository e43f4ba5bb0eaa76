package cache

import (
	"fmt"
	"testing"
	"time"

	"modelgate/internal/core"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache()
	defer c.Stop()

	c.Set("key", "value", time.Minute)

	got, found := c.Get("key")
	if !found {
		t.Fatal("expected key to be found")
	}
	if got != "value" {
		t.Errorf("got %v, want value", got)
	}
}

func TestCacheExpiration(t *testing.T) {
	c := NewCache()
	defer c.Stop()

	c.Set("key", "value", -time.Second)

	if _, found := c.Get("key"); found {
		t.Error("expected expired key to be absent")
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewCache()
	defer c.Stop()
	c.capacity = 3

	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i, time.Minute)
	}

	// key-0 is the least recently used entry and should be gone.
	if _, found := c.Get("key-0"); found {
		t.Error("expected key-0 to be evicted")
	}
	if _, found := c.Get("key-3"); !found {
		t.Error("expected key-3 to survive")
	}
}

func TestCacheLRUOrdering(t *testing.T) {
	c := NewCache()
	defer c.Stop()
	c.capacity = 2

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Get("a") // refresh a
	c.Set("c", 3, time.Minute)

	if _, found := c.Get("b"); found {
		t.Error("expected b to be evicted after a was refreshed")
	}
	if _, found := c.Get("a"); !found {
		t.Error("expected refreshed a to survive")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache()
	defer c.Stop()

	c.Set("key", "value", time.Minute)
	c.Clear()

	if _, found := c.Get("key"); found {
		t.Error("expected cleared cache to be empty")
	}
}

func TestCacheServicePrompts(t *testing.T) {
	cs := NewCacheService()
	defer cs.Stop()

	cs.SetPrompt("k", "You are a helpful assistant.", time.Minute)

	prompt, found := cs.GetPrompt("k")
	if !found {
		t.Fatal("expected prompt to be cached")
	}
	if prompt != "You are a helpful assistant." {
		t.Errorf("got %q", prompt)
	}

	cs.ClearPrompts()
	if _, found := cs.GetPrompt("k"); found {
		t.Error("expected prompt cache to be cleared")
	}
}

func TestGeneratePromptCacheKey(t *testing.T) {
	uc := &core.UserContext{Name: "Ada", Company: "Acme", Role: "CTO", Tier: "pro"}

	k1 := GeneratePromptCacheKey("base", uc)
	k2 := GeneratePromptCacheKey("base", uc)
	k3 := GeneratePromptCacheKey("base", nil)
	k4 := GeneratePromptCacheKey("other", uc)

	if k1 != k2 {
		t.Error("identical inputs must produce identical keys")
	}
	if k1 == k3 || k1 == k4 {
		t.Error("different inputs must produce different keys")
	}
}

func TestTruncateCacheKey(t *testing.T) {
	if got := TruncateCacheKey("short", 16); got != "short" {
		t.Errorf("short key changed: %q", got)
	}
	long := TruncateCacheKey("0123456789abcdef0123", 8)
	if long != "01234567..." {
		t.Errorf("got %q", long)
	}
}
