package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

type RoomLookup interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
}

// SessionClaims: Subject = user id, Room = комната, в которую выдан токен.
type SessionClaims struct {
	jwt.StandardClaims
	Room string `json:"room"`
}

// AuthService issues per-room session tokens (HS256).
type AuthService struct {
	rooms  RoomLookup
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(rooms RoomLookup, secret, issuer string, ttl time.Duration) *AuthService {
	return &AuthService{
		rooms:  rooms,
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue checks the room exists and signs a token for (room, user).
func (s *AuthService) Issue(ctx context.Context, roomID, userID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" || userID == "" {
		return "", domain.ErrInvalidInput
	}
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return "", err
	}

	now := s.now()
	claims := SessionClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Room: roomID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses the token and checks it was issued for roomID.
func (s *AuthService) Verify(token, roomID string) (string, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if !claims.VerifyIssuer(s.issuer, true) {
		return "", ErrInvalidToken
	}
	if claims.Room != roomID || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
