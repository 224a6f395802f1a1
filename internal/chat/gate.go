package chat

import "strconv"

// Gate is the access allow-list predicate. An empty allow-list means open
// access; otherwise a user is allowed iff the decimal form of their ID is
// listed. Pure, no I/O.
type Gate struct {
	allowed map[string]struct{}
}

// NewGate builds a gate from configured allow-list entries.
func NewGate(allowedIDs []string) *Gate {
	g := &Gate{allowed: make(map[string]struct{}, len(allowedIDs))}
	for _, id := range allowedIDs {
		if id != "" {
			g.allowed[id] = struct{}{}
		}
	}
	return g
}

// Allowed reports whether the user may interact with the bot.
func (g *Gate) Allowed(userID int64) bool {
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[strconv.FormatInt(userID, 10)]
	return ok
}
