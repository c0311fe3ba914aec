package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"
	"github.com/apmanager001/tripmaps-sub000/internal/cascade"
	"github.com/apmanager001/tripmaps-sub000/internal/db"

	"github.com/asaskevich/govalidator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

var (
	signTokenFn       = (*Service).signToken
	hashPasswordFn    = bcrypt.GenerateFromPassword
	parseWithClaimsFn = jwt.ParseWithClaims
)

type Service struct {
	secret []byte
	db     db.DB
	purger *cascade.Purger
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(secret string, db db.DB, purger *cascade.Purger) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
		purger: purger,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, TokenResponse, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return User{}, TokenResponse{}, apperr.Validation("email, username, password required")
	}
	if !govalidator.IsEmail(req.Email) {
		return User{}, TokenResponse{}, apperr.Validation("email is invalid")
	}
	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, TokenResponse{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		AvatarURL:    req.AvatarURL,
		Role:         RoleMember,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, username, password_hash, full_name, avatar_url)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at
	`, user.ID, user.Email, user.Username, user.PasswordHash, user.FullName, user.AvatarURL)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, TokenResponse{}, apperr.FromDB(err, "user")
	}

	tokens, err := s.GenerateTokens(ctx, Identity{UserID: user.ID, Role: user.Role})
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (User, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, username, password_hash, full_name, avatar_url, role, created_at, updated_at
		FROM users WHERE email = $1
	`, strings.TrimSpace(strings.ToLower(req.Email)))

	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.FullName, &user.AvatarURL, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, TokenResponse{}, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return User{}, TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return User{}, TokenResponse{}, apperr.Unauthorized("invalid credentials")
	}

	tokens, err := s.GenerateTokens(ctx, Identity{UserID: user.ID, Role: user.Role})
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, id Identity) (TokenResponse, error) {
	access, err := signTokenFn(s, id, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, id, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, id.UserID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateRefreshToken checks the token against the store and revokes it, so
// every refresh token is single use. The role is re-read from the users
// table.
func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (Identity, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return Identity{}, apperr.Unauthorized("refresh token invalid")
	}

	var id Identity
	var expiresAt time.Time
	err = s.db.QueryRow(ctx, `
		UPDATE refresh_tokens rt
		SET revoked_at = now()
		FROM users u
		WHERE rt.token = $1 AND rt.revoked_at IS NULL AND u.id = rt.user_id
		RETURNING rt.user_id, u.role, rt.expires_at
	`, token).Scan(&id.UserID, &id.Role, &expiresAt)
	if err != nil || id.UserID != claims.UserID || time.Now().After(expiresAt) {
		return Identity{}, apperr.Unauthorized("refresh token invalid")
	}
	return id, nil
}

func (s *Service) ValidateAccessToken(token string) (Identity, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return Identity{}, apperr.Unauthorized("token invalid")
	}
	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT u.id, u.username, u.full_name, u.avatar_url, u.role, u.created_at,
		       (SELECT COUNT(*) FROM follows WHERE following_id = u.id),
		       (SELECT COUNT(*) FROM follows WHERE follower_id = u.id),
		       (SELECT COUNT(*) FROM maps m WHERE m.user_id = u.id AND NOT m.is_private)
		FROM users u
		WHERE u.id=$1
	`, userID).Scan(&p.ID, &p.Username, &p.FullName, &p.AvatarURL, &p.Role, &p.CreatedAt, &p.Followers, &p.Following, &p.Maps)
	if err != nil {
		return Profile{}, apperr.FromDB(err, "user")
	}
	return p, nil
}

func (s *Service) Preferences(ctx context.Context, userID string) (Preferences, error) {
	var p Preferences
	err := s.db.QueryRow(ctx, `
		SELECT email_alerts, follow_alerts, like_alerts, comment_alerts
		FROM users WHERE id=$1
	`, userID).Scan(&p.EmailAlerts, &p.FollowAlerts, &p.LikeAlerts, &p.CommentAlerts)
	if err != nil {
		return Preferences{}, apperr.FromDB(err, "user")
	}
	return p, nil
}

func (s *Service) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (Preferences, error) {
	var p Preferences
	err := s.db.QueryRow(ctx, `
		UPDATE users SET
			email_alerts = COALESCE($2, email_alerts),
			follow_alerts = COALESCE($3, follow_alerts),
			like_alerts = COALESCE($4, like_alerts),
			comment_alerts = COALESCE($5, comment_alerts),
			updated_at = now()
		WHERE id=$1
		RETURNING email_alerts, follow_alerts, like_alerts, comment_alerts
	`, userID, patch.EmailAlerts, patch.FollowAlerts, patch.LikeAlerts, patch.CommentAlerts).
		Scan(&p.EmailAlerts, &p.FollowAlerts, &p.LikeAlerts, &p.CommentAlerts)
	if err != nil {
		return Preferences{}, apperr.FromDB(err, "user")
	}
	return p, nil
}

// SetRole changes another user's role. Only admins may call it.
func (s *Service) SetRole(ctx context.Context, callerRole, userID, role string) error {
	if callerRole != RoleAdmin {
		return apperr.Forbidden("admin role required")
	}
	switch role {
	case RoleMember, RoleModerator, RoleAdmin:
	default:
		return apperr.Newf(apperr.KindValidation, "unknown role %q", role)
	}
	tag, err := s.db.Exec(ctx, `UPDATE users SET role=$2, updated_at=now() WHERE id=$1`, userID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// DeleteAccount removes the user and everything they own in one transaction,
// then purges their photo files.
func (s *Service) DeleteAccount(ctx context.Context, userID string) (cascade.Report, error) {
	var keys []string
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1 FOR UPDATE`, userID).Scan(&id); err != nil {
			return apperr.FromDB(err, "user")
		}
		var err error
		keys, err = cascade.DeleteUserTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return cascade.Report{}, apperr.FromDB(err, "user")
	}
	return s.purger.Purge(ctx, keys), nil
}

func (s *Service) signToken(id Identity, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	return parseClaims(s.secret, token)
}

func parseClaims(secret []byte, token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperr.Unauthorized("token invalid")
	}
	if claims.Role == "" {
		claims.Role = RoleMember
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}
