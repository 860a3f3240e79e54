package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/internal/domain/entity"
	repo "github.com/swordot/portal/internal/domain/repository"
	"github.com/swordot/portal/internal/metrics"
	"github.com/swordot/portal/pkg/helpers"
	"github.com/swordot/portal/pkg/mailer"
	mailtpl "github.com/swordot/portal/pkg/mailer/templates"
)

// AccountIndex is the search side of the account store.
type AccountIndex interface {
	IndexAccount(ctx context.Context, a *entity.Account) error
	SearchAccounts(ctx context.Context, q string, size int) ([]entity.Account, error)
}

// EmailPublisher queues email jobs for the worker.
type EmailPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

func detailKey(name string) string {
	return "account:detail:" + name
}

type AccountService struct {
	Repo     repo.AccountRepository
	Hasher   Hasher
	Redis    *redis.Client
	Logger   *logrus.Logger
	Index    AccountIndex
	Mail     EmailPublisher
	Metrics  metrics.Recorder
	CacheTTL time.Duration
	Links    PortalLinks
	Now      func() time.Time
}

// PortalLinks are rendered into the welcome email.
type PortalLinks struct {
	Name       string
	URL        string
	SupportURL string
}

type AccountOption func(*AccountService)

func WithAccountIndex(x AccountIndex) AccountOption {
	return func(s *AccountService) { s.Index = x }
}

func WithWelcomeMail(p EmailPublisher, links PortalLinks) AccountOption {
	return func(s *AccountService) {
		s.Mail = p
		s.Links = links
	}
}

func WithMetrics(m metrics.Recorder) AccountOption {
	return func(s *AccountService) { s.Metrics = m }
}

// WithDetailCache caches account details in Redis for ttl. Zero disables the cache.
func WithDetailCache(ttl time.Duration) AccountOption {
	return func(s *AccountService) { s.CacheTTL = ttl }
}

func WithClock(now func() time.Time) AccountOption {
	return func(s *AccountService) { s.Now = now }
}

func NewAccountService(r repo.AccountRepository, h Hasher, rdb *redis.Client, logger *logrus.Logger, opts ...AccountOption) *AccountService {
	s := &AccountService{
		Repo:    r,
		Hasher:  h,
		Redis:   rdb,
		Logger:  logger,
		Metrics: metrics.Nop{},
		Now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CreateAccountInput struct {
	Name     string
	Email    string
	Password string
	// Type defaults to normal. The public HTTP endpoint never sets it.
	Type entity.AccountType

	IP        string
	UserAgent string
}

// AccountSummary is what creation returns. It never carries the digest.
type AccountSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Creation int64  `json:"creation"`
}

// CreateAccount checks name/email uniqueness, validates and hashes the password and
// stores the account. Nothing is written when any check fails.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (*AccountSummary, error) {
	conflict, err := s.Repo.FindConflict(ctx, in.Name, in.Email)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if conflict != nil {
		s.Metrics.RecordAccountConflict()
		return nil, ErrAccountConflict
	}

	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		s.Metrics.RecordInvalidCredential()
		return nil, ErrInvalidCredential
	}

	typ := in.Type
	if typ == "" {
		typ = entity.AccountNormal
	}
	if !typ.Valid() {
		return nil, ErrInvalidAccountType
	}

	digest, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &entity.Account{
		Name:          in.Name,
		Email:         in.Email,
		Password:      digest,
		Type:          typ,
		PremiumEndsAt: entity.PremiumNever,
		Creation:      helpers.UnixSeconds(s.Now()),
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// lost the race against a concurrent creation
			s.Metrics.RecordAccountConflict()
			return nil, ErrAccountConflict
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.Metrics.RecordAccountCreated()
	helpers.LogInfo(s.Logger, "account created", logrus.Fields{"account_id": a.ID, "name": a.Name})

	s.forgetDetail(ctx, a.Name)
	s.indexAccount(ctx, a)
	s.sendWelcome(ctx, a, in)

	return &AccountSummary{ID: a.ID, Name: a.Name, Email: a.Email, Creation: a.Creation}, nil
}

func (s *AccountService) indexAccount(ctx context.Context, a *entity.Account) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexAccount(ctx, a); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("account_id", a.ID).Warn("es index failed")
	}
}

func (s *AccountService) sendWelcome(ctx context.Context, a *entity.Account, in CreateAccountInput) {
	if s.Mail == nil {
		return
	}
	data := mailtpl.NewWelcomeData(s.Links.Name, a.Name, a.Email,
		mailtpl.WithPortalURL(s.Links.URL),
		mailtpl.WithSupportURL(s.Links.SupportURL),
		mailtpl.WithIP(in.IP),
		mailtpl.WithUserAgent(in.UserAgent),
		mailtpl.WithTime(s.Now()),
	)
	job := mailer.EmailJob{To: a.Email, Template: mailtpl.WelcomeAccount, Data: mailtpl.ToMap(data)}
	if err := s.Mail.PublishJSON(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("account_id", a.ID).Warn("publish welcome email failed")
	}
}

type CharacterView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Level        int    `json:"level"`
	Vocation     int    `json:"vocation"`
	VocationName string `json:"vocation_name"`
	Sex          int    `json:"sex"`
	LookType     int    `json:"looktype"`
	LastLogin    int64  `json:"lastlogin"`
}

type ProfileView struct {
	RealName string `json:"real_name"`
	Location string `json:"location"`
}

// AccountDetail is the public account page model. Email and digest are left out.
type AccountDetail struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	PremiumEndsAt int64           `json:"premium_ends_at"`
	PremiumActive bool            `json:"premium_active"`
	Creation      int64           `json:"creation"`
	Players       []CharacterView `json:"players"`
	Profile       *ProfileView    `json:"profile"`
	DisplayName   string          `json:"display_name"`
}

func toDetail(a *entity.Account) *AccountDetail {
	d := &AccountDetail{
		ID:            a.ID,
		Name:          a.Name,
		Type:          string(a.Type),
		PremiumEndsAt: a.PremiumEndsAt,
		Creation:      a.Creation,
		Players:       make([]CharacterView, 0, len(a.Players)),
		DisplayName:   a.DisplayName(),
	}
	for _, c := range a.Players {
		d.Players = append(d.Players, CharacterView{
			ID:           c.ID,
			Name:         c.Name,
			Level:        c.Level,
			Vocation:     c.Vocation,
			VocationName: c.VocationName(),
			Sex:          c.Sex,
			LookType:     c.LookType,
			LastLogin:    c.LastLogin,
		})
	}
	if a.Profile != nil {
		d.Profile = &ProfileView{RealName: a.Profile.RealName, Location: a.Profile.Location}
	}
	return d
}

// GetAccountByName loads the account page model. A miss is ErrAccountNotFound and is
// not treated as a failure.
func (s *AccountService) GetAccountByName(ctx context.Context, name string) (*AccountDetail, error) {
	var d AccountDetail
	if s.cacheEnabled() {
		ok, err := helpers.RedisGetJSON(ctx, s.Redis, detailKey(name), &d)
		if err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("name", name).Warn("account cache read failed")
		}
		if ok {
			s.finishDetail(&d)
			return &d, nil
		}
	}

	a, err := s.Repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if s.Logger != nil {
				s.Logger.WithField("name", name).Debug("account not found")
			}
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	detail := toDetail(a)
	if s.cacheEnabled() {
		if err := helpers.RedisSetJSON(ctx, s.Redis, detailKey(name), detail, s.CacheTTL); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("name", name).Warn("account cache write failed")
		}
	}
	s.finishDetail(detail)
	return detail, nil
}

// finishDetail recomputes the time dependent fields, which may be stale in a cached copy.
func (s *AccountService) finishDetail(d *AccountDetail) {
	d.PremiumActive = (&entity.Account{PremiumEndsAt: d.PremiumEndsAt}).PremiumActive(s.Now())
	if d.Players == nil {
		d.Players = []CharacterView{}
	}
}

func (s *AccountService) cacheEnabled() bool {
	return s.Redis != nil && s.CacheTTL > 0
}

func (s *AccountService) forgetDetail(ctx context.Context, name string) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisDel(ctx, s.Redis, detailKey(name)); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("name", name).Warn("account cache delete failed")
	}
}

// AccountHit is one search result.
type AccountHit struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Creation int64  `json:"creation"`
}

// SearchAccounts matches account names. It returns an empty list when search is not configured.
func (s *AccountService) SearchAccounts(ctx context.Context, q string, size int) ([]AccountHit, error) {
	q = strings.TrimSpace(q)
	if s.Index == nil || q == "" {
		return []AccountHit{}, nil
	}
	if size <= 0 || size > maxSearchSize {
		size = defaultSearchSize
	}
	found, err := s.Index.SearchAccounts(ctx, q, size)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	out := make([]AccountHit, 0, len(found))
	for _, a := range found {
		out = append(out, AccountHit{ID: a.ID, Name: a.Name, Type: string(a.Type), Creation: a.Creation})
	}
	return out, nil
}
