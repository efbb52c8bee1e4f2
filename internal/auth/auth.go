package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrInvalidToken = errors.New("invalid identity token")
	ErrForbidden    = errors.New("identity may not access this shop")
	ErrBadSecret    = errors.New("invalid ingestion secret")
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleShop  Role = "shop"
)

// Identity is what the token verifier hands back. Shop identities carry the
// one shop they belong to; admins have no shop of their own.
type Identity struct {
	Subject string
	Role    Role
	ShopID  string
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// CanAccess reports whether id may read or subscribe to shopID.
func (id Identity) CanAccess(shopID string) bool {
	if shopID == "" {
		return false
	}
	switch id.Role {
	case RoleAdmin:
		return true
	case RoleShop:
		return id.ShopID == shopID
	}
	return false
}

// Verifier turns an opaque token into an identity. Token issuance lives
// outside this service.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// StaticVerifier checks tokens against a fixed table, as configured by
// AUTH_TOKENS ("token=admin" or "token=shop:<id>").
type StaticVerifier struct {
	tokens map[string]Identity
}

func NewStaticVerifier(table map[string]string) *StaticVerifier {
	v := &StaticVerifier{tokens: make(map[string]Identity, len(table))}
	for token, role := range table {
		if role == string(RoleAdmin) {
			v.tokens[token] = Identity{Subject: "admin", Role: RoleAdmin}
			continue
		}
		if shop, ok := strings.CutPrefix(role, "shop:"); ok && shop != "" {
			v.tokens[token] = Identity{Subject: shop, Role: RoleShop, ShopID: shop}
		}
	}
	return v
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	id, ok := v.tokens[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// CheckSecret compares the presented ingestion secret in constant time.
func CheckSecret(expected, presented string) error {
	if expected == "" || presented == "" {
		return ErrBadSecret
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		return ErrBadSecret
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
