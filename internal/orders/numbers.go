package orders

import (
	"math/rand/v2"
	"strings"
	"time"
)

// Letters and digits with O, I, 0 and 1 left out.
const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateOrderNumber returns ORD-YYYYMMDD-NNNNN-ZZZ. Uniqueness is checked by
// the caller.
func GenerateOrderNumber(now time.Time) string {
	var b strings.Builder
	b.Grow(22)
	b.WriteString("ORD-")
	b.WriteString(now.Format("20060102"))
	b.WriteByte('-')
	for range 5 {
		b.WriteByte(byte('0' + rand.IntN(10)))
	}
	b.WriteByte('-')
	for range 3 {
		b.WriteByte(orderNumberAlphabet[rand.IntN(len(orderNumberAlphabet))])
	}
	return b.String()
}
