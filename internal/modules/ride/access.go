// README: Access codes grant scoped, unauthenticated access to a single ride.
package ride

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
	"unicode"

	"transfer/internal/types"
)

const AccessCodeLength = 8

// Ambiguous glyphs (0/O, 1/I/L) are left out so codes survive being read aloud.
const accessCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func NewAccessCode() (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := 0; i < AccessCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(accessCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeAccessCode upper-cases and strips separators typed by users.
func NormalizeAccessCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, code)
}

// normalizePhone keeps digits only so "+48 600-100-200" matches "48600100200".
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

// ResolveAccess maps an (access code, phone) pair to the ride it unlocks.
// Every mismatch is reported as ErrNotFound so codes cannot be guessed one field at a time.
func (s *Service) ResolveAccess(ctx context.Context, code, phone string) (types.ID, error) {
	code = NormalizeAccessCode(code)
	if len(code) != AccessCodeLength || phone == "" {
		return "", ErrNotFound
	}
	r, err := s.store.GetByAccessCode(ctx, code)
	if err != nil {
		return "", err
	}
	want, got := normalizePhone(r.Client.Phone), normalizePhone(phone)
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return "", ErrNotFound
	}
	return r.ID, nil
}
