// Package token manages the bearer token used for Azure management API
// calls: an atomically swapped snapshot store and a supervised background
// refresher that renews the token before it can expire mid-request.
package token

import (
	"sync/atomic"
	"time"
)

// Token is an immutable credential snapshot. It is replaced, never
// mutated, so a reader holding a snapshot can keep using it even while
// the refresher installs a newer one.
type Token struct {
	Secret    string
	ExpiresAt time.Time
}

// Store holds the current token snapshot. Reads and writes are single
// atomic pointer operations; neither ever blocks the other.
type Store struct {
	current atomic.Pointer[Token]
	leeway  time.Duration
}

// NewStore creates an empty store. leeway is the minimum remaining
// lifetime a token must have to be handed out by Read; it exists so a
// token judged valid at read time cannot expire during the network call
// that follows.
func NewStore(leeway time.Duration) *Store {
	return &Store{leeway: leeway}
}

// Read returns the current secret if the token is still usable for an
// outbound call, i.e. its expiry exceeds now plus the leeway.
func (s *Store) Read() (string, bool) {
	tok := s.current.Load()
	if tok == nil {
		return "", false
	}
	if !tok.ExpiresAt.After(time.Now().Add(s.leeway)) {
		return "", false
	}
	return tok.Secret, true
}

// Valid reports whether Read would currently succeed.
func (s *Store) Valid() bool {
	_, ok := s.Read()
	return ok
}

// Peek returns the raw snapshot without the leeway check. Used by the
// refresher and the health reporter, which need the expiry itself.
func (s *Store) Peek() (Token, bool) {
	tok := s.current.Load()
	if tok == nil {
		return Token{}, false
	}
	return *tok, true
}

// Write atomically replaces the current token.
func (s *Store) Write(tok Token) {
	s.current.Store(&tok)
	tokenExpiryTimestamp.Set(float64(tok.ExpiresAt.Unix()))
}
