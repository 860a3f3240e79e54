// Package memory is an in-process AccountRepository used for local runs
// (STORAGE_DRIVER=memory) and tests. Name and email uniqueness is enforced the same
// way the postgres UNIQUE constraints do.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/swordot/portal/internal/domain/entity"
	"github.com/swordot/portal/internal/domain/repository"
)

type AccountRepository struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*entity.Account
	players  map[int64][]entity.Character
	profiles map[int64]entity.Profile
	nextChar int64
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[int64]*entity.Account),
		players:  make(map[int64][]entity.Character),
		profiles: make(map[int64]entity.Profile),
	}
}

func (r *AccountRepository) FindConflict(_ context.Context, name, email string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a := r.conflictLocked(name, email); a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

// conflictLocked returns the lowest-id account sharing name or email.
func (r *AccountRepository) conflictLocked(name, email string) *entity.Account {
	var found *entity.Account
	for _, a := range r.accounts {
		if a.Name != name && a.Email != email {
			continue
		}
		if found == nil || a.ID < found.ID {
			found = a
		}
	}
	return found
}

func (r *AccountRepository) Create(_ context.Context, a *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictLocked(a.Name, a.Email) != nil {
		return repository.ErrDuplicate
	}
	r.nextID++
	a.ID = r.nextID
	cp := *a
	cp.Players = nil
	cp.Profile = nil
	r.accounts[a.ID] = &cp
	return nil
}

func (r *AccountRepository) GetByName(_ context.Context, name string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Name == name {
			return r.expandLocked(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) GetByID(_ context.Context, id int64) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AccountRepository) Count(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.accounts)), nil
}

// AddPlayer attaches a character to an existing account and returns it with its ID set.
func (r *AccountRepository) AddPlayer(accountID int64, c entity.Character) (entity.Character, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[accountID]; !ok {
		return entity.Character{}, repository.ErrNotFound
	}
	r.nextChar++
	c.ID = r.nextChar
	c.AccountID = accountID
	r.players[accountID] = append(r.players[accountID], c)
	return c, nil
}

// SetProfile stores the website profile of an account.
func (r *AccountRepository) SetProfile(accountID int64, p entity.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[accountID]; !ok {
		return repository.ErrNotFound
	}
	r.profiles[accountID] = p
	return nil
}

func (r *AccountRepository) expandLocked(a *entity.Account) *entity.Account {
	cp := *a
	players := append([]entity.Character(nil), r.players[a.ID]...)
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	cp.Players = players
	if p, ok := r.profiles[a.ID]; ok {
		cp.Profile = &p
	}
	return &cp
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
