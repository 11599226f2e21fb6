package cache

import (
	"testing"

	"router/pkg/config"
)

func TestGeometryCacheKey(t *testing.T) {
	cols := config.DefaultColumnConfig()

	t.Run("same inputs produce same key", func(t *testing.T) {
		k1 := GeometryCacheKey("/data/route1", 42, cols)
		k2 := GeometryCacheKey("/data/route1", 42, cols)
		if k1 != k2 {
			t.Errorf("same inputs should produce same key: %v != %v", k1, k2)
		}
	})

	t.Run("different route dirs produce different keys", func(t *testing.T) {
		k1 := GeometryCacheKey("/data/route1", 42, cols)
		k2 := GeometryCacheKey("/data/route2", 42, cols)
		if k1 == k2 {
			t.Error("different route directories should produce different keys")
		}
	})

	t.Run("different reach ids produce different keys", func(t *testing.T) {
		k1 := GeometryCacheKey("/data/route1", 42, cols)
		k2 := GeometryCacheKey("/data/route1", 43, cols)
		if k1 == k2 {
			t.Error("different reach ids should produce different keys")
		}
	})

	t.Run("different column mapping produces different key", func(t *testing.T) {
		other := cols
		other.Length = "dx_m"
		k1 := GeometryCacheKey("/data/route1", 42, cols)
		k2 := GeometryCacheKey("/data/route1", 42, other)
		if k1 == k2 {
			t.Error("different column mappings should produce different keys")
		}
	})

	t.Run("key is prefixed", func(t *testing.T) {
		k := GeometryCacheKey("/data/route1", 42, cols)
		if len(k) < 5 || k[:5] != "geom:" {
			t.Errorf("expected key to start with 'geom:', got %v", k)
		}
	})
}

func TestQuickHash(t *testing.T) {
	data := []byte("test data")
	hash := QuickHash(data)

	if len(hash) != 64 { // SHA256 hex = 64 chars
		t.Errorf("QuickHash length = %d, want 64", len(hash))
	}

	hash2 := QuickHash(data)
	if hash != hash2 {
		t.Error("same data should produce same hash")
	}
}

func TestShortHash(t *testing.T) {
	data := []byte("test data")
	hash := ShortHash(data)

	if len(hash) != 16 {
		t.Errorf("ShortHash length = %d, want 16", len(hash))
	}
}
