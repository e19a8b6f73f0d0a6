package flow

import (
	"fmt"
	"net/url"
	"strings"
)

// collectionPrefixes are path segments that name a collection rather than a
// flow; the flow id follows them.
var collectionPrefixes = map[string]bool{
	"flows":    true,
	"typebots": true,
	"bots":     true,
}

// queryAliases are query parameter names that may carry the target flow id.
var queryAliases = []string{"flow", "flowId", "typebotId", "botId"}

// FlowFromRedirect extracts the target flow id from a redirect URL: the
// first path segment, the second when the first is a known collection
// prefix, or one of the aliased query parameters.
func FlowFromRedirect(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %v", ErrRedirectUnresolvable, raw, err)
	}

	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	if len(segments) > 0 {
		if !collectionPrefixes[segments[0]] {
			return segments[0], nil
		}
		if len(segments) > 1 {
			return segments[1], nil
		}
	}

	query := u.Query()
	for _, key := range queryAliases {
		if v := query.Get(key); v != "" {
			return v, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrRedirectUnresolvable, raw)
}
