package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// Fingerprint identifies cart contents independent of line order.
func Fingerprint(cart []CartItem) string {
	pairs := make([]string, 0, len(cart))
	for _, it := range cart {
		pairs = append(pairs, strconv.FormatInt(it.ProductID, 10)+":"+strconv.Itoa(it.Quantity))
	}
	slices.Sort(pairs)
	sum := sha256.Sum256([]byte(strings.Join(pairs, "|")))
	return hex.EncodeToString(sum[:])
}
