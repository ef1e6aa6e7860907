package domain

import "time"

// SessionTTL is how long a session survives without activity.
const SessionTTL = 24 * time.Hour

// Session is an anonymous visitor session. CreatedAt and LastActivity are Unix
// milliseconds; TTL is the expiry in Unix seconds, consumed by the table's TTL sweep.
type Session struct {
	SessionID    string `dynamodbav:"sessionId" json:"sessionId"`
	CreatedAt    int64  `dynamodbav:"createdAt" json:"createdAt"`
	LastActivity int64  `dynamodbav:"lastActivity" json:"lastActivity"`
	TTL          int64  `dynamodbav:"ttl" json:"ttl"`
}

// Expired reports whether the session is past its expiry at now. The TTL sweep
// may lag behind, so readers check this themselves.
func (s Session) Expired(now time.Time) bool {
	return s.TTL > 0 && now.Unix() >= s.TTL
}

// ExpiryFrom returns the TTL value for activity observed at t.
func ExpiryFrom(t time.Time) int64 {
	return t.Add(SessionTTL).Unix()
}

// Millis converts t to Unix milliseconds, the timestamp unit used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
