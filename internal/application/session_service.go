package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/internal/domain/entity"
	repo "github.com/swordot/portal/internal/domain/repository"
	"github.com/swordot/portal/internal/metrics"
	"github.com/swordot/portal/pkg/helpers"
)

// SessionService signs accounts in and out. Sessions live in a Redis hash keyed by account id;
// the JWT pair in the cookies carries the session id that must match it.
type SessionService struct {
	Repo    repo.AccountRepository
	Hasher  Hasher
	JWT     *helpers.JWTManager
	Redis   *redis.Client
	Logger  *logrus.Logger
	Metrics metrics.Recorder
	TTL     time.Duration
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// SessionUser is the signed-in account as the portal sees it.
type SessionUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func SessionKey(accountID int64) string {
	return "account:session:" + strconv.FormatInt(accountID, 10)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func NewSessionService(r repo.AccountRepository, h Hasher, jwt *helpers.JWTManager, rdb *redis.Client, logger *logrus.Logger, ttl time.Duration, m metrics.Recorder) *SessionService {
	if m == nil {
		m = metrics.Nop{}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{Repo: r, Hasher: h, JWT: jwt, Redis: rdb, Logger: logger, Metrics: m, TTL: ttl}
}

// Authenticate checks name and password without issuing tokens.
func (s *SessionService) Authenticate(ctx context.Context, name, password string) (*entity.Account, error) {
	a, err := s.Repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !s.Hasher.Verify(a.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

func (s *SessionService) Login(ctx context.Context, name, password string) (*SessionUser, TokenPair, error) {
	a, err := s.Authenticate(ctx, name, password)
	if err != nil {
		s.Metrics.RecordLogin(false)
		return nil, TokenPair{}, err
	}
	pair, err := s.IssueTokens(ctx, a)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.Metrics.RecordLogin(true)
	return &SessionUser{ID: a.ID, Name: a.Name}, pair, nil
}

// IssueTokens generates access/refresh tokens and records a session in Redis.
func (s *SessionService) IssueTokens(ctx context.Context, a *entity.Account) (TokenPair, error) {
	sid := uuid.NewString()
	pair, err := s.generatePair(a.ID, a.Name, sid)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Error("generate tokens failed")
		}
		return TokenPair{}, err
	}

	if s.Redis != nil {
		fields := map[string]any{
			"account_id": a.ID,
			"name":       a.Name,
			"sid":        sid,
			"logged_in":  true,
			"created_at": nowRFC3339(),
		}
		key := SessionKey(a.ID)
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.TTL)
		if _, rErr := pipe.Exec(ctx); rErr != nil {
			return TokenPair{}, fmt.Errorf("store session: %w", rErr)
		}
	}
	return pair, nil
}

func (s *SessionService) generatePair(accountID int64, name, sid string) (TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(accountID, name, sid)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(accountID, name, sid)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

// Refresh rotates the session id and the token pair when the refresh token matches the
// stored session.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (TokenPair, *SessionUser, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	a, err := s.Repo.GetByID(ctx, claims.AccountID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if _, err := s.Validate(ctx, claims); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	sid := uuid.NewString()
	pair, err := s.generatePair(a.ID, a.Name, sid)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if s.Redis != nil {
		key := SessionKey(a.ID)
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, map[string]any{
			"sid":        sid,
			"updated_at": nowRFC3339(),
		})
		pipe.Expire(ctx, key, s.TTL)
		if _, rErr := pipe.Exec(ctx); rErr != nil {
			return TokenPair{}, nil, fmt.Errorf("rotate session: %w", rErr)
		}
	}
	return pair, &SessionUser{ID: a.ID, Name: a.Name}, nil
}

// Validate checks that the token's session is still the active one. Without Redis the
// signed claims are trusted as is.
func (s *SessionService) Validate(ctx context.Context, claims *helpers.Claims) (*SessionUser, error) {
	if claims == nil {
		return nil, ErrSessionNotFound
	}
	if s.Redis != nil {
		data, err := s.Redis.HGetAll(ctx, SessionKey(claims.AccountID)).Result()
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if len(data) == 0 || data["sid"] != claims.SessionID {
			return nil, ErrSessionNotFound
		}
	}
	return &SessionUser{ID: claims.AccountID, Name: claims.Name}, nil
}

// Logout drops the session so every token issued for it stops working.
func (s *SessionService) Logout(ctx context.Context, accountID int64) error {
	if s.Redis == nil {
		return nil
	}
	if err := helpers.RedisDel(ctx, s.Redis, SessionKey(accountID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
