package session

import (
	"crypto/sha256"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// NewStore builds the cookie store. cipher must be an AES key length; when
// empty the block key is derived from the secret, so cookies are always
// encrypted.
func NewStore(secret, cipher string) sessions.Store {
	hashKey := sha256.Sum256([]byte(secret))
	var blockKey []byte
	if cipher != "" {
		blockKey = []byte(cipher)
	} else {
		sum := sha256.Sum256(append([]byte("block:"), secret...))
		blockKey = sum[:]
	}
	return cookie.NewStore(hashKey[:], blockKey)
}

// Middleware registers both cookie tiers on the router.
func Middleware(store sessions.Store) gin.HandlerFunc {
	return sessions.SessionsMany(Names, store)
}
