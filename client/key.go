package client

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/saiset-co/sai-gateway-console/types"
	"github.com/saiset-co/sai-gateway-console/utils"
)

const keySeparator = "\x1f"

// BuildKey derives the cache and coalescing key for a read. Equal inputs
// always give equal keys. The token only contributes its digest.
func BuildKey(token, endpoint string, body interface{}) (string, error) {
	var serialized []byte
	if body != nil {
		encoded, err := utils.Marshal(body)
		if err != nil {
			return "", types.WrapError(err, "failed to serialize request body for cache key")
		}
		serialized = encoded
	}

	digest := blake2b.Sum256([]byte(token))

	var b strings.Builder
	b.Grow(hex.EncodedLen(len(digest)) + len(endpoint) + len(serialized) + 2)
	b.WriteString(hex.EncodeToString(digest[:]))
	b.WriteString(keySeparator)
	b.WriteString(endpoint)
	b.WriteString(keySeparator)
	b.Write(serialized)

	return b.String(), nil
}
