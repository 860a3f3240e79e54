package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/swordot/portal/internal/domain/entity"
	repo "github.com/swordot/portal/internal/domain/repository"
	"github.com/swordot/portal/internal/infrastructure/memory"
	"github.com/swordot/portal/pkg/helpers"
	"github.com/swordot/portal/pkg/mailer"
	mailtpl "github.com/swordot/portal/pkg/mailer/templates"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 45, 999_000_000, time.UTC)

// countingRepo counts writes and can fail or race on demand.
type countingRepo struct {
	*memory.AccountRepository
	creates     int
	findErr     error
	getErr      error
	beforeWrite func()
}

func (r *countingRepo) FindConflict(ctx context.Context, name, email string) (*entity.Account, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.AccountRepository.FindConflict(ctx, name, email)
}

func (r *countingRepo) Create(ctx context.Context, a *entity.Account) error {
	r.creates++
	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	return r.AccountRepository.Create(ctx, a)
}

func (r *countingRepo) GetByName(ctx context.Context, name string) (*entity.Account, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.AccountRepository.GetByName(ctx, name)
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed []string
	hits    []entity.Account
	err     error
	lastQ   string
	lastN   int
}

func (f *fakeIndex) IndexAccount(_ context.Context, a *entity.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, a.Name)
	return f.err
}

func (f *fakeIndex) SearchAccounts(_ context.Context, q string, size int) ([]entity.Account, error) {
	f.lastQ, f.lastN = q, size
	return f.hits, f.err
}

type fakePublisher struct {
	jobs []mailer.EmailJob
	err  error
}

func (p *fakePublisher) PublishJSON(_ context.Context, body any) error {
	p.jobs = append(p.jobs, body.(mailer.EmailJob))
	return p.err
}

type fakeRecorder struct {
	created, conflicts, invalid int
}

func (f *fakeRecorder) RecordAccountCreated() { f.created++ }
func (f *fakeRecorder) RecordAccountConflict() { f.conflicts++ }
func (f *fakeRecorder) RecordInvalidCredential() { f.invalid++ }
func (f *fakeRecorder) RecordLogin(bool) {}
func (f *fakeRecorder) RecordHTTPRequest(string, string, int, time.Duration) {}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newAccountService(r repo.AccountRepository, opts ...AccountOption) *AccountService {
	opts = append([]AccountOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewAccountService(r, SHA1Hasher{}, nil, helpers.NewNopLogger(), opts...)
}

func TestCreateAccount_Success(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	rec := &fakeRecorder{}
	s := newAccountService(r, WithMetrics(rec))

	got, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, int64(1709296245), got.Creation)
	assert.Equal(t, 10, helpers.Digits(got.Creation))
	assert.Equal(t, 1, r.creates)
	assert.Equal(t, 1, rec.created)

	stored, err := r.GetByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "e5e9fa1ba31ecd1ae84f75caaa474f3a663f05f4", stored.Password)
	assert.Equal(t, entity.AccountNormal, stored.Type)
	assert.Equal(t, entity.PremiumNever, stored.PremiumEndsAt)
}

func TestCreateAccount_ConflictOnNameOrEmail(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	rec := &fakeRecorder{}
	s := newAccountService(r, WithMetrics(rec))
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret"})
	require.NoError(t, err)

	_, err = s.CreateAccount(ctx, CreateAccountInput{Name: "alice", Email: "new@x.com", Password: "secret"})
	assert.ErrorIs(t, err, ErrAccountConflict)
	_, err = s.CreateAccount(ctx, CreateAccountInput{Name: "bob", Email: "a@x.com", Password: "secret"})
	assert.ErrorIs(t, err, ErrAccountConflict)

	assert.Equal(t, 1, r.creates)
	assert.Equal(t, 2, rec.conflicts)
	n, _ := r.Count(ctx)
	assert.Equal(t, int64(1), n)
}

func TestCreateAccount_ConflictWinsOverShortPassword(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	s := newAccountService(r)
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret"})
	require.NoError(t, err)

	_, err = s.CreateAccount(ctx, CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "abc"})
	assert.ErrorIs(t, err, ErrAccountConflict)
}

func TestCreateAccount_ShortPassword(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	rec := &fakeRecorder{}
	s := newAccountService(r, WithMetrics(rec))

	for _, pw := range []string{"", "abcd", "ñañá"} {
		_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "bob", Email: "b@x.com", Password: pw})
		assert.ErrorIs(t, err, ErrInvalidCredential, "password %q", pw)
	}
	assert.Equal(t, 0, r.creates)
	assert.Equal(t, 3, rec.invalid)

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "bob", Email: "b@x.com", Password: "abcde"})
	assert.NoError(t, err)
}

func TestCreateAccount_InvalidType(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	s := newAccountService(r)

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "bob", Email: "b@x.com", Password: "secret", Type: "admin"})
	assert.ErrorIs(t, err, ErrInvalidAccountType)
	assert.Equal(t, 0, r.creates)

	out, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "gm", Email: "gm@x.com", Password: "secret", Type: entity.AccountGamemaster})
	require.NoError(t, err)
	stored, _ := r.GetByName(context.Background(), out.Name)
	assert.Equal(t, entity.AccountGamemaster, stored.Type)
}

func TestCreateAccount_LostRaceIsConflict(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	// someone else takes the name between the check and the insert
	r.beforeWrite = func() {
		r.beforeWrite = nil
		_ = r.AccountRepository.Create(context.Background(), &entity.Account{Name: "alice", Email: "other@x.com"})
	}
	s := newAccountService(r)

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret"})
	assert.ErrorIs(t, err, ErrAccountConflict)
}

func TestCreateAccount_StorageErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	r := &countingRepo{AccountRepository: memory.NewAccountRepository(), findErr: boom}
	s := newAccountService(r)

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAccountConflict)
	assert.Equal(t, 0, r.creates)
}

func TestCreateAccount_IndexesAndSendsWelcome(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	idx := &fakeIndex{}
	pub := &fakePublisher{}
	s := newAccountService(r,
		WithAccountIndex(idx),
		WithWelcomeMail(pub, PortalLinks{Name: "Sword", URL: "https://sword.test/"}),
	)

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret", IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, idx.indexed)
	require.Len(t, pub.jobs, 1)
	job := pub.jobs[0]
	assert.Equal(t, "a@x.com", job.To)
	assert.Equal(t, mailtpl.WelcomeAccount, job.Template)
	assert.Equal(t, "https://sword.test/accounts/alice", job.Data["AccountURL"])
	assert.Equal(t, "10.0.0.1", job.Data["IP"])
}

func TestCreateAccount_SideEffectFailuresDoNotFailCreation(t *testing.T) {
	r := &countingRepo{AccountRepository: memory.NewAccountRepository()}
	s := newAccountService(r,
		WithAccountIndex(&fakeIndex{err: errors.New("es down")}),
		WithWelcomeMail(&fakePublisher{err: errors.New("amqp down")}, PortalLinks{}),
	)

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret"})
	assert.NoError(t, err)
}

func seedAlice(t *testing.T, r *memory.AccountRepository) *entity.Account {
	t.Helper()
	a := &entity.Account{Name: "alice", Email: "a@x.com", Password: "digest", Type: entity.AccountTutor,
		PremiumEndsAt: fixedNow.Add(24 * time.Hour).Unix(), Creation: 1700000000}
	require.NoError(t, r.Create(context.Background(), a))
	_, err := r.AddPlayer(a.ID, entity.Character{Name: "Knighty", Level: 42, Vocation: 8})
	require.NoError(t, err)
	return a
}

func TestGetAccountByName(t *testing.T) {
	mem := memory.NewAccountRepository()
	seedAlice(t, mem)
	s := newAccountService(mem)

	d, err := s.GetAccountByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "tutor", d.Type)
	assert.True(t, d.PremiumActive)
	assert.Equal(t, "alice", d.DisplayName)
	assert.Nil(t, d.Profile)
	require.Len(t, d.Players, 1)
	assert.Equal(t, "Elite Knight", d.Players[0].VocationName)

	require.NoError(t, mem.SetProfile(d.ID, entity.Profile{RealName: "Alice L."}))
	d, err = s.GetAccountByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", d.DisplayName)
}

func TestGetAccountByName_NotFound(t *testing.T) {
	s := newAccountService(memory.NewAccountRepository())

	_, err := s.GetAccountByName(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetAccountByName_StorageError(t *testing.T) {
	boom := errors.New("db down")
	s := newAccountService(&countingRepo{AccountRepository: memory.NewAccountRepository(), getErr: boom})

	_, err := s.GetAccountByName(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
}

func TestGetAccountByName_RedisReadThrough(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mem := memory.NewAccountRepository()
	seedAlice(t, mem)
	r := &countingRepo{AccountRepository: mem}
	s := NewAccountService(r, SHA1Hasher{}, rdb, helpers.NewNopLogger(),
		WithDetailCache(time.Minute), WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	_, err := s.GetAccountByName(ctx, "alice")
	require.NoError(t, err)
	require.True(t, mr.Exists("account:detail:alice"))
	assert.Equal(t, time.Minute, mr.TTL("account:detail:alice"))

	// served from redis even though storage now fails
	r.getErr = errors.New("db down")
	d, err := s.GetAccountByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", d.Name)
	assert.True(t, d.PremiumActive)

	// premium_active is recomputed on every read
	s.Now = func() time.Time { return fixedNow.Add(48 * time.Hour) }
	d, err = s.GetAccountByName(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, d.PremiumActive)
}

func TestCreateAccount_DropsCachedDetail(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("account:detail:alice", `{"name":"stale"}`))
	s := NewAccountService(memory.NewAccountRepository(), SHA1Hasher{}, rdb, helpers.NewNopLogger(), WithDetailCache(time.Minute))

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "alice", Email: "a@x.com", Password: "secret"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("account:detail:alice"))
}

func TestSearchAccounts(t *testing.T) {
	idx := &fakeIndex{hits: []entity.Account{{ID: 1, Name: "alice", Type: entity.AccountNormal, Creation: 1700000000}}}
	s := newAccountService(memory.NewAccountRepository(), WithAccountIndex(idx))

	hits, err := s.SearchAccounts(context.Background(), " ali ", 500)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alice", hits[0].Name)
	assert.Equal(t, "ali", idx.lastQ)
	assert.Equal(t, defaultSearchSize, idx.lastN)

	hits, err = s.SearchAccounts(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	idx.err = errors.New("es down")
	_, err = s.SearchAccounts(context.Background(), "ali", 5)
	assert.Error(t, err)
}

func TestSearchAccounts_NoIndex(t *testing.T) {
	s := newAccountService(memory.NewAccountRepository())
	hits, err := s.SearchAccounts(context.Background(), "ali", 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestCreateAccount_LongPasswordWithBcrypt(t *testing.T) {
	r := memory.NewAccountRepository()
	h := BcryptHasher{Cost: bcrypt.MinCost}
	s := NewAccountService(r, h, nil, helpers.NewNopLogger())
	long := strings.Repeat("p", 73)

	got, err := s.CreateAccount(context.Background(), CreateAccountInput{Name: "alice", Email: "a@x.com", Password: long})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)

	stored, err := r.GetByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, h.Verify(stored.Password, long))
}

func TestGetAccountByName_PremiumFlags(t *testing.T) {
	mem := memory.NewAccountRepository()
	for _, a := range []*entity.Account{
		{Name: "expired", Email: "e@x.com", Password: "d", Type: entity.AccountNormal, PremiumEndsAt: fixedNow.Unix() - 1, Creation: 1700000000},
		{Name: "never", Email: "n@x.com", Password: "d", Type: entity.AccountNormal, PremiumEndsAt: entity.PremiumNever, Creation: 1700000000},
	} {
		require.NoError(t, mem.Create(context.Background(), a))
	}
	s := newAccountService(mem)

	d, err := s.GetAccountByName(context.Background(), "expired")
	require.NoError(t, err)
	assert.False(t, d.PremiumActive)

	d, err = s.GetAccountByName(context.Background(), "never")
	require.NoError(t, err)
	assert.False(t, d.PremiumActive)
	assert.Equal(t, entity.PremiumNever, d.PremiumEndsAt)
}
