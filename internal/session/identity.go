package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
)

const (
	CookieName  = "storyteller_id"
	identityTTL = 30 * 24 * time.Hour
	issuer      = "storyteller"
)

var ErrInvalidIdentity = errors.New("invalid identity token")

// Identity issues and checks the signed cookie that carries a player id,
// so a returning browser keeps its seat history.
type Identity struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIdentity(secret string) *Identity {
	return &Identity{
		secret: []byte(secret),
		ttl:    identityTTL,
		now:    time.Now,
	}
}

func (i *Identity) Sign(playerID string) (string, error) {
	now := i.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   playerID,
		Issuer:    issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(i.ttl).Unix(),
	})

	return token.SignedString(i.secret)
}

func (i *Identity) Verify(signed string) (string, error) {
	claims := &jwt.StandardClaims{}

	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if !token.Valid || claims.Subject == "" || claims.Issuer != issuer {
		return "", ErrInvalidIdentity
	}

	return claims.Subject, nil
}

// PlayerID returns the player id from the request's cookie, issuing a new
// id and cookie when it is missing or does not verify.
func (i *Identity) PlayerID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if id, err := i.Verify(c.Value); err == nil {
			return id, nil
		}
	}

	id := uuid.NewString()

	signed, err := i.Sign(id)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(i.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id, nil
}
