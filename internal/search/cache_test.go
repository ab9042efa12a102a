package search

import (
	"testing"

	"github.com/hyperjump/miwake/internal/models"
)

func TestResultCache_GetSet(t *testing.T) {
	c := newResultCache(2)
	if v, ok := c.get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.set("a", &models.IdentifyResult{ID: "alpha", Matched: true})
	v, ok := c.get("a")
	if !ok || v.ID != "alpha" {
		t.Errorf("get: got %v, %v", v, ok)
	}
	v.ID = "mutated"
	if again, _ := c.get("a"); again.ID != "alpha" {
		t.Error("cached value was mutated through a returned copy")
	}
	c.set("b", &models.IdentifyResult{ID: "beta"})
	c.get("a")
	c.set("c", &models.IdentifyResult{ID: "gamma"}) // evicts b
	if _, ok := c.get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.len() != 2 {
		t.Errorf("len: got %d", c.len())
	}
}

func TestResultCache_Disabled(t *testing.T) {
	c := newResultCache(0)
	c.set("a", &models.IdentifyResult{ID: "alpha"})
	if _, ok := c.get("a"); ok {
		t.Error("disabled cache returned a hit")
	}
	if c.len() != 0 {
		t.Error("disabled cache has entries")
	}
}

func TestCacheKey(t *testing.T) {
	if cacheKey([]byte("x"), 4) == cacheKey([]byte("x"), 6) {
		t.Error("catalog size must be part of the key")
	}
	if cacheKey([]byte("x"), 4) != cacheKey([]byte("x"), 4) {
		t.Error("key is not deterministic")
	}
}
