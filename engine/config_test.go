package engine

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	if c.DefaultTimeout != 300*time.Second {
		t.Errorf("DefaultTimeout = %v, want 300s", c.DefaultTimeout)
	}
	if c.MaxSessions != 1000 {
		t.Errorf("MaxSessions = %d, want 1000", c.MaxSessions)
	}
	if c.StorageType != StorageMemory {
		t.Errorf("StorageType = %v, want %v", c.StorageType, StorageMemory)
	}
	if c.Logger == nil {
		t.Errorf("expected a default Logger")
	}
}

func TestNewConfigClampsDefaultTimeout(t *testing.T) {
	cases := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"below min", 100 * time.Millisecond, time.Second},
		{"above max", 2 * time.Hour, time.Hour},
		{"in range", 10 * time.Second, 10 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewConfig(WithDefaultTimeout(tc.in))
			if c.DefaultTimeout != tc.want {
				t.Errorf("DefaultTimeout = %v, want %v", c.DefaultTimeout, tc.want)
			}
		})
	}
}

func TestNewConfigDefaultsNonPositiveKnobs(t *testing.T) {
	c := NewConfig(WithMaxSessions(-1), WithPruneInterval(-1), WithGraceDelay(-1))
	if c.MaxSessions != 1000 {
		t.Errorf("MaxSessions = %d, want default 1000", c.MaxSessions)
	}
	if c.PruneInterval != 60*time.Second {
		t.Errorf("PruneInterval = %v, want default 60s", c.PruneInterval)
	}
	if c.GraceDelay != 5*time.Second {
		t.Errorf("GraceDelay = %v, want default 5s", c.GraceDelay)
	}
}

func TestWithRedisAlsoSetsStorageType(t *testing.T) {
	c := NewConfig(WithRedis(RedisConfig{Addr: "localhost:6379"}))
	if c.StorageType != StorageRedis {
		t.Errorf("StorageType = %v, want %v", c.StorageType, StorageRedis)
	}
	if c.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want %q", c.Redis.Addr, "localhost:6379")
	}
}
