package matcher

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"

	"github.com/sensinfor/sensinfor/internal/hexutil"
)

// Digest hashes body with the named algorithm and returns lowercase hex.
// xxhash is the 64-bit XXH64 digest; mmh3 is 32-bit MurmurHash3.
func Digest(algorithm string, body []byte) (string, error) {
	switch strings.ToLower(algorithm) {
	case "md5":
		sum := md5.Sum(body)
		return hexutil.Encode(sum[:]), nil
	case "sha256":
		sum := sha256.Sum256(body)
		return hexutil.Encode(sum[:]), nil
	case "xxhash", "xxh64":
		return fmt.Sprintf("%016x", xxhash.Sum64(body)), nil
	case "mmh3", "murmur3":
		return fmt.Sprintf("%08x", murmur3.Sum32(body)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
