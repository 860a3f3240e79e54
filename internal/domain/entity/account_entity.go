package entity

import "time"

// AccountType is the account group shown on the account page.
type AccountType string

const (
	AccountNormal      AccountType = "normal"
	AccountTutor       AccountType = "tutor"
	AccountSeniorTutor AccountType = "senior_tutor"
	AccountGamemaster  AccountType = "gamemaster"
	AccountGod         AccountType = "god"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountNormal, AccountTutor, AccountSeniorTutor, AccountGamemaster, AccountGod:
		return true
	}
	return false
}

// PremiumNever is the premium_ends_at sentinel for accounts that never had premium.
const PremiumNever int64 = 0

// Account is the aggregate root for the account domain.
// Password holds the credential digest, never the plaintext.
// Creation and PremiumEndsAt are epoch seconds.
type Account struct {
	ID            int64
	Name          string
	Email         string
	Password      string
	Type          AccountType
	PremiumEndsAt int64
	Creation      int64

	Players []Character
	// Profile is nil when the account has no website profile row.
	Profile *Profile
}

// Profile is optional enrichment filled in on the website.
type Profile struct {
	RealName string
	Location string
}

// DisplayName is the real name when the profile has one, else the account name.
func (a *Account) DisplayName() string {
	if a.Profile != nil && a.Profile.RealName != "" {
		return a.Profile.RealName
	}
	return a.Name
}

// PremiumActivated is false only for the never-activated sentinel.
func (a *Account) PremiumActivated() bool {
	return a.PremiumEndsAt != PremiumNever
}

// PremiumActive reports whether premium time is left at now.
func (a *Account) PremiumActive(now time.Time) bool {
	return a.PremiumActivated() && a.PremiumEndsAt > now.Unix()
}
