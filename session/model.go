package session

// Session is the server-side record behind an issued token pair. The
// record outlives revocation: RevokedAt is written in place so later
// lookups can distinguish a revoked session from one that aged out.
type Session struct {
	SessionID   string
	UserID      string
	Role        string
	RefreshHash [32]byte
	RevokedAt   int64
	CreatedAt   int64
	ExpiresAt   int64
}

func (s *Session) Revoked() bool {
	return s.RevokedAt != 0
}
