package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/cellplan/internal/config"
	"github.com/gravitas-games/cellplan/pkg/models"
)

// Authenticator turns a bearer token into a planner
type Authenticator interface {
	ValidateToken(ctx context.Context, tokenString string) (*models.Planner, error)
}

// Blacklist reports revoked users
type Blacklist interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
}

// JWTValidator handles JWT token validation
type JWTValidator struct {
	config    config.JWTConfig
	publicKey *ecdsa.PublicKey
	keyMu     sync.RWMutex
	blacklist Blacklist
	client    *http.Client
	log       logrus.FieldLogger
}

// Claims represents JWT token claims from the login server
type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	AuthMethod  string `json:"auth_method"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	jwt.RegisteredClaims
}

// NewJWTValidator creates a validator that fetches its public key from the
// login server and refreshes it until ctx is done
func NewJWTValidator(ctx context.Context, cfg config.JWTConfig, blacklist Blacklist, log logrus.FieldLogger) (*JWTValidator, error) {
	validator := &JWTValidator{
		config:    cfg,
		blacklist: blacklist,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}

	if err := validator.RefreshPublicKey(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}

	go validator.periodicKeyRefresh(ctx)

	log.Info("JWT validator initialized")
	return validator, nil
}

// NewJWTValidatorWithKey creates a validator around a fixed public key
func NewJWTValidatorWithKey(cfg config.JWTConfig, key *ecdsa.PublicKey, blacklist Blacklist, log logrus.FieldLogger) *JWTValidator {
	return &JWTValidator{
		config:    cfg,
		publicKey: key,
		blacklist: blacklist,
		log:       log,
	}
}

// RefreshPublicKey fetches the public key from the login server
func (v *JWTValidator) RefreshPublicKey(ctx context.Context) error {
	v.log.WithField("url", v.config.PublicKeyURL).Info("Fetching public key")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.PublicKeyURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build public key request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	keyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	ecdsaKey, err := ParsePublicKey(keyData)
	if err != nil {
		return err
	}

	v.keyMu.Lock()
	v.publicKey = ecdsaKey
	v.keyMu.Unlock()

	v.log.Info("Public key refreshed successfully")
	return nil
}

// ParsePublicKey decodes a PEM-encoded ECDSA public key
func ParsePublicKey(keyData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecdsaKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// periodicKeyRefresh refreshes the public key periodically
func (v *JWTValidator) periodicKeyRefresh(ctx context.Context) {
	hours := v.config.PublicKeyRefreshHrs
	if hours <= 0 {
		hours = 24
	}
	ticker := time.NewTicker(time.Duration(hours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(ctx); err != nil {
				v.log.WithError(err).Warn("Failed to refresh public key")
			}
		}
	}
}

// ValidateToken validates a JWT token and returns planner information
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*models.Planner, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		v.keyMu.RLock()
		defer v.keyMu.RUnlock()
		if v.publicKey == nil {
			return nil, errors.New("no public key loaded")
		}
		return v.publicKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Issuer != v.config.Issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.config.Issuer, claims.Issuer)
	}

	userIDStr := strconv.FormatInt(claims.UserID, 10)
	planner := &models.Planner{
		ID:          userIDStr,
		Username:    claims.Username,
		Email:       claims.Email,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
		AuthMethod:  claims.AuthMethod,
	}

	if planner.IsBanned() {
		return nil, fmt.Errorf("user is banned")
	}
	if !planner.IsActive() {
		return nil, fmt.Errorf("user not activated")
	}

	if v.blacklist != nil {
		isBlacklisted, err := v.blacklist.IsBlacklisted(ctx, userIDStr)
		if err != nil {
			// Don't fail authentication if Redis is down
			v.log.WithError(err).Warn("Failed to check blacklist")
		} else if isBlacklisted {
			return nil, fmt.Errorf("token is blacklisted")
		}
	}

	return planner, nil
}

// AnonymousAuthenticator admits everyone as a fresh guest planner. It is
// used when no login server is configured.
type AnonymousAuthenticator struct{}

// ValidateToken ignores the token
func (AnonymousAuthenticator) ValidateToken(context.Context, string) (*models.Planner, error) {
	id := "guest-" + uuid.NewString()[:8]
	return &models.Planner{
		ID:         id,
		Username:   id,
		Activated:  time.Now().Unix(),
		AuthMethod: "anonymous",
	}, nil
}

// extractTokenFromHeader extracts JWT token from WebSocket connection header
func extractTokenFromHeader(r *http.Request) string {
	// Sec-WebSocket-Protocol: "access_token, <token>"
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := splitAndTrim(protocols, ",")
		if len(parts) == 2 && parts[0] == "access_token" {
			return parts[1]
		}
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}

	// Query parameter (less secure, but supported)
	return r.URL.Query().Get("token")
}

// splitAndTrim splits a string and drops empty, trimmed parts
func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
