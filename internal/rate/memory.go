package rate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter: misma ventana fija que RedisLimiter pero in-process,
// sobre go-cache. Para despliegues de un solo nodo (el caso normal de
// este servicio).
type MemoryLimiter struct {
	c      *gocache.Cache
	mu     sync.Mutex
	Max    int64
	Window time.Duration
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		Max:    int64(max),
		Window: window,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)
	winEnd := winStart.Add(l.Window)
	cacheKey := fmt.Sprintf("%s:%d", strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	// go-cache no tiene INCR atómico con TTL: serializamos con el mutex
	l.mu.Lock()
	var hits int64 = 1
	if v, ok := l.c.Get(cacheKey); ok {
		hits = v.(int64) + 1
	}
	l.c.Set(cacheKey, hits, time.Until(winEnd))
	l.mu.Unlock()

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   time.Until(winEnd),
	}
	if !allowed {
		res.RetryAfter = time.Until(winEnd)
		if res.RetryAfter < 0 {
			res.RetryAfter = time.Duration(math.Ceil(l.Window.Seconds())) * time.Second
		}
	}
	return res, nil
}
