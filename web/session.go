package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"library-web/library"
)

const sessionCookie = "session"

type sessionClaims struct {
	Role library.Role `json:"role"`
	jwt.RegisteredClaims
}

// sessions issues and verifies the signed session cookie that carries the
// caller identity between requests.
type sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func (s *sessions) issue(c echo.Context, id library.Identity) error {
	now := s.now()
	claims := sessionClaims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *sessions) clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

var errNoSession = errors.New("no session")

// identity returns the caller of the request, or errNoSession.
func (s *sessions) identity(c echo.Context) (library.Identity, error) {
	cookie, err := c.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return library.Identity{}, errNoSession
	}
	return s.parse(cookie.Value)
}

func (s *sessions) parse(raw string) (library.Identity, error) {
	var claims sessionClaims
	parser := jwt.Parser{
		ValidMethods: []string{jwt.SigningMethodHS256.Alg()},
		// Expiry is checked below against s.now.
		SkipClaimsValidation: true,
	}
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return s.secret, nil })
	if err != nil {
		return library.Identity{}, fmt.Errorf("parse session: %w", err)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(s.now()) {
		return library.Identity{}, errNoSession
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return library.Identity{}, fmt.Errorf("session subject %q: %w", claims.Subject, errNoSession)
	}
	return library.Identity{UserID: userID, Role: claims.Role}, nil
}
