package tools

import "time"

// Argument helpers. Tool arguments arrive as decoded JSON, so numbers
// are float64 and absent keys fall back to defaults.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argInt(args map[string]any, key string, def int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func argFloat(args map[string]any, key string, def float64) float64 {
	switch n := args[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func argDate(args map[string]any, key string, def time.Time) time.Time {
	s := argString(args, key)
	if s == "" {
		return def
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return def
	}
	return t
}

// Escalation limits.
const (
	defaultLimit  = 5
	maxLimit      = 20
	defaultRadius = 50.0
	maxRadius     = 1000.0
)

// escalateLimit doubles the limit argument, capped.
func escalateLimit(args map[string]any) map[string]any {
	out := copyArgs(args)
	limit := argInt(out, "limit", defaultLimit) * 2
	if limit > maxLimit {
		limit = maxLimit
	}
	out["limit"] = float64(limit)
	return out
}

// escalateRadius doubles radius_km (capped) on top of the limit bump.
func escalateRadius(args map[string]any) map[string]any {
	out := escalateLimit(args)
	radius := argFloat(out, "radius_km", defaultRadius) * 2
	if radius > maxRadius {
		radius = maxRadius
	}
	out["radius_km"] = radius
	return out
}

// escalateDateRange moves start_date back by the current span, doubling
// the window, on top of the limit bump.
func escalateDateRange(args map[string]any) map[string]any {
	out := escalateLimit(args)
	now := time.Now().UTC()
	from := argDate(out, "start_date", now.AddDate(0, 0, -7))
	to := argDate(out, "end_date", now)
	span := to.Sub(from)
	if span <= 0 {
		span = 7 * 24 * time.Hour
	}
	out["start_date"] = from.Add(-span).Format("2006-01-02")
	return out
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
