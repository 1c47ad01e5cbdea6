package email

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// uuidTokens hands out random (version 4) UUIDs.
type uuidTokens struct{}

func (uuidTokens) Token() string { return uuid.NewString() }

// digest returns the lowercase hex MD5 of s.
func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
