package services

import (
	"context"
	"crypto/rand"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// SecretRotationConfig controls how often API keys and the JWT signing
// secret are due for rotation.
type SecretRotationConfig struct {
	RotationInterval time.Duration
	GracePeriod      time.Duration
	MaxActiveKeys    int
}

// permissionList stores a []string as a JSON array so it round-trips
// through a single SQLite TEXT column.
type permissionList []string

func (p permissionList) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(p))
	return string(b), err
}

func (p *permissionList) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*p = nil
		return nil
	default:
		return fmt.Errorf("unsupported permissions column type %T", src)
	}
	if raw == "" {
		*p = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// APIKey is a hashed, rate-limited credential issued to a caller of the
// reference host's API.
type APIKey struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	KeyHash      string          `db:"key_hash" json:"-"`
	KeyPrefix    string          `db:"key_prefix" json:"key_prefix"`
	Name         string          `db:"name" json:"name"`
	Permissions  permissionList  `db:"permissions" json:"permissions"`
	Status       string          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt    time.Time       `db:"expires_at" json:"expires_at"`
	LastUsedAt   *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
	LastRotated  time.Time       `db:"last_rotated" json:"last_rotated"`
	RotationDue  time.Time       `db:"rotation_due" json:"rotation_due"`
	UsageCount   int64           `db:"usage_count" json:"usage_count"`
	RateLimitRPM int             `db:"rate_limit_rpm" json:"rate_limit_rpm"`
	RateLimitRPH int             `db:"rate_limit_rph" json:"rate_limit_rph"`
	RateLimitRPD int             `db:"rate_limit_rpd" json:"rate_limit_rpd"`
}

// JWTSecret is one version of the host's JWT signing secret. Rotation
// deactivates the previous version rather than deleting it, so tokens
// signed just before a rotation still verify during the grace period.
type JWTSecret struct {
	ID        string    `db:"id" json:"id"`
	Version   int       `db:"version" json:"version"`
	Secret    string    `db:"secret" json:"-"`
	Algorithm string    `db:"algorithm" json:"algorithm"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	RotatedAt time.Time `db:"rotated_at" json:"rotated_at"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}

// SecretRotationService manages API key issuance/rotation and JWT secret
// versioning against the host's own SQLite database. It holds no cache of
// its own; every lookup goes straight to the database, which is small
// enough (tens of thousands of rows at most) that this is never the
// bottleneck in a single-writer SQLite host.
type SecretRotationService struct {
	db     *sqlx.DB
	logger zerolog.Logger
	config SecretRotationConfig
}

// NewSecretRotationService constructs a SecretRotationService with sane
// rotation defaults.
func NewSecretRotationService(db *sqlx.DB, logger zerolog.Logger, config SecretRotationConfig) *SecretRotationService {
	if config.RotationInterval == 0 {
		config.RotationInterval = 90 * 24 * time.Hour
	}
	if config.GracePeriod == 0 {
		config.GracePeriod = 7 * 24 * time.Hour
	}
	if config.MaxActiveKeys == 0 {
		config.MaxActiveKeys = 5
	}
	return &SecretRotationService{
		db:     db,
		logger: logger.With().Str("service", "secret_rotation").Logger(),
		config: config,
	}
}

// GenerateAPIKey issues a new API key for a user/tenant pair and returns
// both the stored record and the raw key, which is shown to the caller
// exactly once.
func (s *SecretRotationService) GenerateAPIKey(ctx context.Context, userID, tenantID, name string, permissions []string) (*APIKey, string, error) {
	var activeCount int
	if err := s.db.GetContext(ctx, &activeCount,
		"SELECT COUNT(*) FROM api_keys WHERE user_id = ? AND status = 'active'", userID); err != nil {
		return nil, "", fmt.Errorf("check active keys: %w", err)
	}
	if activeCount >= s.config.MaxActiveKeys {
		return nil, "", fmt.Errorf("maximum number of active keys (%d) reached", s.config.MaxActiveKeys)
	}

	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return nil, "", fmt.Errorf("generate random key: %w", err)
	}
	keyString := hex.EncodeToString(rawBytes)
	keyPrefix := keyString[:8]
	fullKey := fmt.Sprintf("cntgty_sk_%s", keyString)

	hashedKey, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash api key: %w", err)
	}

	now := time.Now().UTC()
	apiKey := &APIKey{
		ID:           uuid.New().String(),
		UserID:       userID,
		TenantID:     tenantID,
		KeyHash:      string(hashedKey),
		KeyPrefix:    keyPrefix,
		Name:         name,
		Permissions:  permissionList(permissions),
		Status:       "active",
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.RotationInterval),
		LastRotated:  now,
		RotationDue:  now.Add(s.config.RotationInterval),
		RateLimitRPM: 60,
		RateLimitRPH: 1000,
		RateLimitRPD: 10000,
	}

	const q = `
		INSERT INTO api_keys (
			id, user_id, tenant_id, key_hash, key_prefix, name,
			permissions, status, created_at, expires_at, last_rotated,
			rotation_due, usage_count, rate_limit_rpm, rate_limit_rph, rate_limit_rpd
		) VALUES (
			:id, :user_id, :tenant_id, :key_hash, :key_prefix, :name,
			:permissions, :status, :created_at, :expires_at, :last_rotated,
			:rotation_due, :usage_count, :rate_limit_rpm, :rate_limit_rph, :rate_limit_rpd
		)`
	if _, err := s.db.NamedExecContext(ctx, q, apiKey); err != nil {
		return nil, "", fmt.Errorf("store api key: %w", err)
	}

	s.logger.Info().Str("user_id", userID).Str("tenant_id", tenantID).Str("key_prefix", keyPrefix).Msg("generated api key")
	return apiKey, fullKey, nil
}

// RotateAPIKey issues a replacement key and puts the old one into a grace
// period rather than revoking it immediately.
func (s *SecretRotationService) RotateAPIKey(ctx context.Context, keyID string) (*APIKey, string, error) {
	var oldKey APIKey
	if err := s.db.GetContext(ctx, &oldKey, "SELECT * FROM api_keys WHERE id = ?", keyID); err != nil {
		return nil, "", fmt.Errorf("get api key: %w", err)
	}

	newKey, rawKey, err := s.GenerateAPIKey(ctx, oldKey.UserID, oldKey.TenantID, oldKey.Name+" (rotated)", oldKey.Permissions)
	if err != nil {
		return nil, "", fmt.Errorf("generate replacement key: %w", err)
	}

	gracePeriodEnd := time.Now().UTC().Add(s.config.GracePeriod)
	if _, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET status = 'rotating', expires_at = ? WHERE id = ?", gracePeriodEnd, keyID); err != nil {
		return nil, "", fmt.Errorf("mark old key rotating: %w", err)
	}

	s.logger.Info().Str("old_key_id", keyID).Str("new_key_id", newKey.ID).Str("user_id", oldKey.UserID).Msg("rotated api key")
	return newKey, rawKey, nil
}

// RotateJWTSecret mints a new signing secret and deactivates the previous
// one, keeping it readable so tokens signed just before rotation still
// verify during the grace period.
func (s *SecretRotationService) RotateJWTSecret(ctx context.Context) (*JWTSecret, error) {
	secretBytes := make([]byte, 64)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	newSecret := hex.EncodeToString(secretBytes)

	var currentVersion int
	if err := s.db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM jwt_secrets"); err != nil {
		return nil, fmt.Errorf("get current jwt version: %w", err)
	}

	now := time.Now().UTC()
	jwtSecret := &JWTSecret{
		ID:        uuid.New().String(),
		Version:   currentVersion + 1,
		Secret:    newSecret,
		Algorithm: "HS256",
		Status:    "active",
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RotationInterval),
		RotatedAt: now,
		IsActive:  true,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE jwt_secrets SET is_active = 0, status = 'rotating' WHERE is_active = 1"); err != nil {
		return nil, fmt.Errorf("deactivate old secrets: %w", err)
	}

	const q = `
		INSERT INTO jwt_secrets (id, version, secret, algorithm, status, created_at, expires_at, rotated_at, is_active)
		VALUES (:id, :version, :secret, :algorithm, :status, :created_at, :expires_at, :rotated_at, :is_active)`
	if _, err := tx.NamedExecContext(ctx, q, jwtSecret); err != nil {
		return nil, fmt.Errorf("insert new jwt secret: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().Int("version", jwtSecret.Version).Msg("rotated jwt secret")
	return jwtSecret, nil
}

// ValidateAPIKey looks up a presented key by its prefix and verifies it
// against the stored bcrypt hash.
func (s *SecretRotationService) ValidateAPIKey(ctx context.Context, apiKey string) (*APIKey, error) {
	if len(apiKey) < 18 {
		return nil, fmt.Errorf("invalid api key format")
	}
	prefix := apiKey[10:18]

	var keyRecord APIKey
	if err := s.db.GetContext(ctx, &keyRecord,
		"SELECT * FROM api_keys WHERE key_prefix = ? AND status IN ('active', 'rotating')", prefix); err != nil {
		return nil, fmt.Errorf("invalid api key")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(keyRecord.KeyHash), []byte(apiKey)); err != nil {
		return nil, fmt.Errorf("invalid api key")
	}
	if time.Now().After(keyRecord.ExpiresAt) {
		return nil, fmt.Errorf("api key expired")
	}

	go s.updateKeyUsage(context.Background(), keyRecord.ID)
	return &keyRecord, nil
}

func (s *SecretRotationService) updateKeyUsage(ctx context.Context, keyID string) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ?, usage_count = usage_count + 1 WHERE id = ?", time.Now().UTC(), keyID)
	if err != nil {
		s.logger.Error().Err(err).Str("key_id", keyID).Msg("failed to update key usage")
	}
}

// CheckRotationDue returns the IDs of API keys whose rotation_due has
// passed, plus the literal string "JWT_SECRET" if the active signing
// secret itself is overdue.
func (s *SecretRotationService) CheckRotationDue(ctx context.Context) ([]string, error) {
	var dueKeys []string
	if err := s.db.SelectContext(ctx, &dueKeys,
		"SELECT id FROM api_keys WHERE status = 'active' AND rotation_due < ?", time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("check api keys: %w", err)
	}

	var jwtDue int
	if err := s.db.GetContext(ctx, &jwtDue,
		"SELECT COUNT(*) FROM jwt_secrets WHERE is_active = 1 AND expires_at < ?", time.Now().UTC()); err == nil && jwtDue > 0 {
		dueKeys = append(dueKeys, "JWT_SECRET")
	}

	return dueKeys, nil
}

// CleanupExpiredKeys deletes keys and secrets that have been out of the
// grace period for more than a week.
func (s *SecretRotationService) CleanupExpiredKeys(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)

	keysRes, err := s.db.ExecContext(ctx,
		"DELETE FROM api_keys WHERE status IN ('expired', 'rotating') AND expires_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("cleanup api keys: %w", err)
	}
	deletedKeys, _ := keysRes.RowsAffected()

	secretsRes, err := s.db.ExecContext(ctx,
		"DELETE FROM jwt_secrets WHERE is_active = 0 AND expires_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("cleanup jwt secrets: %w", err)
	}
	deletedSecrets, _ := secretsRes.RowsAffected()

	s.logger.Info().Int64("deleted_keys", deletedKeys).Int64("deleted_secrets", deletedSecrets).Msg("cleaned up expired credentials")
	return nil
}

// ListAPIKeysForUser returns every non-deleted key belonging to userID,
// most recently created first.
func (s *SecretRotationService) ListAPIKeysForUser(ctx context.Context, userID string) ([]APIKey, error) {
	var keys []APIKey
	if err := s.db.SelectContext(ctx, &keys,
		"SELECT * FROM api_keys WHERE user_id = ? ORDER BY created_at DESC", userID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKeyForUser marks keyID revoked, but only if it belongs to
// userID, so one caller can't revoke another's key by guessing its ID.
func (s *SecretRotationService) RevokeAPIKeyForUser(ctx context.Context, keyID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET status = 'revoked' WHERE id = ? AND user_id = ?", keyID, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("api key not found")
	}
	return nil
}

// SetUserRateLimits overrides the per-minute/hour/day request budget for
// a single API key.
func (s *SecretRotationService) SetUserRateLimits(ctx context.Context, keyID string, rpm, rph, rpd int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET rate_limit_rpm = ?, rate_limit_rph = ?, rate_limit_rpd = ? WHERE id = ?",
		rpm, rph, rpd, keyID)
	if err != nil {
		return fmt.Errorf("update rate limits: %w", err)
	}
	return nil
}
