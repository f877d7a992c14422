package util

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"os"
	"time"

	"github.com/pkg/errors"
)

const (
	MinUIDLength = 4
	MaxUIDLength = 128
)

const uidSalt = "someething salty!!!"

// NewUID returns a URL-safe alphanumeric identifier of exactly
// clamp(length, 4, 128) characters that does not collide with any
// existing paste at check time. The identifier is not a secret; the
// seed only has to be unique per call, not unpredictable.
func NewUID(length int, exists func(string) (bool, error)) (string, error) {
	if length < MinUIDLength {
		length = MinUIDLength
	}
	if length > MaxUIDLength {
		length = MaxUIDLength
	}
	for retry := 0; retry < 10; retry++ {
		uid := generateHash(length)
		exist, err := exists(uid)
		if err != nil {
			return "", errors.Wrap(err, "uid existence check")
		}
		if !exist {
			return uid, nil
		}
	}
	return "", errors.New("uid collision after 10 retries")
}

// generateHash concatenates filtered base64 rounds of a salted digest
// until the output reaches the requested length, then truncates.
func generateHash(length int) string {
	out := make([]byte, 0, length)
	for len(out) < length {
		seed := make([]byte, 0, 64)
		seed = append(seed, uidSalt...)
		seed = binary.BigEndian.AppendUint64(seed, uint64(time.Now().UnixNano()))
		seed = binary.BigEndian.AppendUint64(seed, uint64(os.Getpid()))
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err == nil {
			seed = append(seed, buf...)
		}
		digest := md5.Sum(seed)
		encoded := base64.StdEncoding.EncodeToString(digest[:])
		for i := 0; i < len(encoded) && len(out) < length; i++ {
			c := encoded[i]
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
				out = append(out, c)
			}
		}
	}
	return string(out)
}
