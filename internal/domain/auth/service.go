package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/yanqian/finedust/pkg/errors"
)

// Service issues and validates HS256 device tokens.
type Service interface {
	IssueToken(ctx context.Context, deviceID string) (string, error)
	ValidateToken(ctx context.Context, token string) (Claims, error)
}

type service struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

const defaultTokenTTL = 30 * 24 * time.Hour

// NewService constructs a Service instance.
func NewService(cfg Config, logger *slog.Logger) Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &service{
		cfg:    cfg,
		logger: logger.With("component", "auth.service"),
		now:    time.Now,
	}
}

func (s *service) IssueToken(_ context.Context, deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", apperrors.Wrap("invalid_input", "device id cannot be empty", nil)
	}
	if !s.cfg.Enabled() {
		return "", apperrors.Wrap("auth_error", "auth secret is not configured", nil)
	}
	now := s.now()
	claims := tokenClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ID:        newTokenID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", apperrors.Wrap("auth_error", "failed to sign token", err)
	}
	s.logger.Info("device token issued", "device_id", deviceID, "token_id", claims.ID)
	return signed, nil
}

func (s *service) ValidateToken(_ context.Context, token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.Wrap("invalid_token", "token invalid", nil)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing expiry", nil)
	}
	if claims.DeviceID == "" {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing device id", nil)
	}
	return Claims{
		DeviceID:  claims.DeviceID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"deviceId"`
}

func newTokenID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}
