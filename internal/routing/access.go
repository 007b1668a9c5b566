package routing

import "strings"

// AccessGate limits full automated handling to an allow-list of phone
// numbers when restricted mode is on. Non-allow-listed senders still get
// greeting and suggestion handling; everything else defers to the team.
type AccessGate struct {
	restricted bool
	allowed    map[string]struct{}
}

func NewAccessGate(restricted bool, allowedPhones []string) *AccessGate {
	allowed := make(map[string]struct{}, len(allowedPhones))
	for _, phone := range allowedPhones {
		if n := normalizePhone(phone); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &AccessGate{restricted: restricted, allowed: allowed}
}

// FullAccess reports whether the sender may use every handler.
func (g *AccessGate) FullAccess(phone string) bool {
	if !g.restricted {
		return true
	}
	_, ok := g.allowed[normalizePhone(phone)]
	return ok
}

// normalizePhone strips formatting so "+966 50 123 4567" and "966501234567"
// compare equal.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}
