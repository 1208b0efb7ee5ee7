package persistence

import (
	"time"

	"github.com/mijoai/mijo-gateway/internal/domain/memory"
)

// 载荷读取辅助, 托管库与影子库的点位都经由这里还原成实体

func payloadString(p *memory.Point, field string) string {
	if p == nil || p.Payload == nil {
		return ""
	}
	if v, ok := p.Payload[field].(string); ok {
		return v
	}
	return ""
}

func payloadInt64(p *memory.Point, field string) int64 {
	if p == nil || p.Payload == nil {
		return 0
	}
	switch v := p.Payload[field].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func payloadTime(p *memory.Point, field string) time.Time {
	raw := payloadString(p, field)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
