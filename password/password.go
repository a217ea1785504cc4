package password

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned by [Bcrypt.Verify] for a wrong password.
var ErrMismatch = errors.New("password mismatch")

const specialChars = `!@#$%^&*(),.?":{}|<>`

// Policy describes the strength rules applied at registration and reset.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy returns the rules enforced by the authentication service.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      12,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Check returns one message per violated rule, in a stable order. An empty result means the
// password is acceptable.
func (p Policy) Check(pw string) []string {
	var violations []string
	if len([]rune(pw)) < p.MinLength {
		violations = append(violations, "Password must be at least "+strconv.Itoa(p.MinLength)+" characters")
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(specialChars, r) {
			special = true
		}
	}
	if p.RequireUpper && !upper {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if p.RequireLower && !lower {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "Password must contain at least one number")
	}
	if p.RequireSpecial && !special {
		violations = append(violations, "Password must contain at least one special character")
	}
	return violations
}

// Bcrypt hashes passwords with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a hasher. A cost outside bcrypt's range uses bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt encoding of pw.
func (b *Bcrypt) Hash(pw string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify returns nil when pw matches hash and [ErrMismatch] otherwise.
func (b *Bcrypt) Verify(pw, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
