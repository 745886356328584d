package stream

import (
	"strings"

	"github.com/hashimhashmi02/Exness-be/internal/trading"
)

// ParseFilter turns the raw symbols query parameter into the subscriber's
// symbol set. An empty parameter subscribes to every supported symbol.
// Entries are normalized the same way order symbols are, and unknown ones
// are dropped silently so a stale client keeps its valid subscriptions. If
// nothing survives the drop, the subscriber gets the full set rather than a
// silent connection.
func ParseFilter(raw string, supported []string) map[string]bool {
	known := make(map[string]bool, len(supported))
	for _, sym := range supported {
		known[sym] = true
	}

	out := make(map[string]bool)
	if strings.TrimSpace(raw) == "" {
		for sym := range known {
			out[sym] = true
		}
		return out
	}

	for _, part := range strings.Split(raw, ",") {
		sym := trading.NormalizeSymbol(part)
		if known[sym] {
			out[sym] = true
		}
	}
	if len(out) == 0 {
		for sym := range known {
			out[sym] = true
		}
	}
	return out
}
