package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/casescope/hub/internal/authority"
	"github.com/casescope/hub/internal/model"
)

// SessionClaims is the signed content of a session token. Cases is the
// entitlement snapshot frozen at issuance; a later directory change only
// takes effect on the next login.
type SessionClaims struct {
	Email       string            `json:"email"`
	DisplayName string            `json:"name"`
	SessionID   string            `json:"sid"`
	Cases       model.Entitlement `json:"cases"`
	jwt.RegisteredClaims
}

// AuthService validates credentials against the external authority and
// issues session tokens carrying a frozen entitlement snapshot.
type AuthService struct {
	authority authority.Client
	dir       *Directory
	secret    []byte
	expiry    time.Duration
}

func NewAuthService(auth authority.Client, dir *Directory, secret string, tokenExpiryHours int) *AuthService {
	return &AuthService{
		authority: auth,
		dir:       dir,
		secret:    []byte(secret),
		expiry:    time.Duration(tokenExpiryHours) * time.Hour,
	}
}

// Login authenticates against the authority and freezes the identity's
// current entitlement into a signed token. An identity the directory
// does not know gets the empty entitlement, not an error.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.Principal, error) {
	sess, err := s.authority.Authenticate(ctx, username, password)
	if err != nil {
		return "", nil, err
	}

	ent := s.dir.Lookup(sess.UserID, username)
	now := time.Now().UTC()
	claims := SessionClaims{
		Email:       model.NormalizeEmail(username),
		DisplayName: displayNameFor(s.dir, sess.UserID),
		SessionID:   uuid.NewString(),
		Cases:       ent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}
	return token, principalFrom(&claims), nil
}

// ValidateToken verifies a session token and returns the principal it
// embeds. The entitlement comes from the token, never the live
// directory.
func (s *AuthService) ValidateToken(raw string) (*model.Principal, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}
	return principalFrom(&claims), nil
}

func principalFrom(claims *SessionClaims) *model.Principal {
	return &model.Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		SessionID:   claims.SessionID,
		Entitlement: claims.Cases,
	}
}

// displayNameFor pulls a display name out of the directory's rosters if
// the identity appears in any of them.
func displayNameFor(dir *Directory, userID string) string {
	gen := dir.current.Load()
	for _, staff := range gen.byCase {
		for _, id := range staff {
			if id.UserID == userID && id.DisplayName != "" {
				return id.DisplayName
			}
		}
	}
	return ""
}
