package redis

import "strings"

// Every key lives under pf:<kind>:... so the rewards services can share a
// Redis database with other tenants.
const keyNamespace = "pf"

func joinKey(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

func rateLimitKey(scope string) string { return joinKey("rate_limit", scope) }

// IdempotencyKey names the stored replay record for id within scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey("idempotency", scope, id)
}

// LockKey names a short-lived mutual exclusion key.
func (c *Client) LockKey(parts ...string) string {
	return joinKey("lock", parts...)
}
