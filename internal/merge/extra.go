package merge

import (
	"context"
	"encoding/json"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
)

// minimal subset always attempted when the full extra-data blob fails to
// decode. Forward compatibility with server-side schema additions depends
// on this fallback, so it must not be removed.
type minimalExtra struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// DecodeExtra decodes an opaque extra-data blob in two tiers: a strict
// decode of the full map first, then a fallback decode of the known subset
// (name, image). A fallback is logged, never surfaced as an error; the
// caller only gets an empty map when both tiers fail.
func DecodeExtra(ctx context.Context, raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}

	var full map[string]any
	if err := json.Unmarshal(raw, &full); err == nil {
		return full
	}

	var min minimalExtra
	if err := json.Unmarshal(raw, &min); err != nil {
		log.Warnw(ctx, "extra data undecodable, dropping", "error", err)
		return nil
	}

	log.Warnw(ctx, "extra data partially decoded, keeping known fields only")
	extra := map[string]any{}
	if min.Name != "" {
		extra["name"] = min.Name
	}
	if min.Image != "" {
		extra["image"] = min.Image
	}
	return extra
}

func extraString(extra map[string]any, key string) string {
	if extra == nil {
		return ""
	}
	s, _ := extra[key].(string)
	return s
}
