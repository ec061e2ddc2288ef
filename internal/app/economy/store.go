// Package economy provides the currency ledger backed by a JSON document.
package economy

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/domain/economy"
	"github.com/arca-org/arca-bot/internal/infra/config"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

// FileName is the ledger document name under the data directory.
const FileName = "economy.json"

// Sentinel errors returned by ledger operations.
var (
	ErrDailyAlreadyClaimed = errors.New("daily reward already claimed today")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("cannot transfer to yourself")
	ErrBelowMinimum        = errors.New("amount below transfer minimum")
	ErrAboveMaximum        = errors.New("amount above transfer maximum")
)

// DailyResult describes a successful daily claim.
type DailyResult struct {
	Base    int
	Bonus   int
	Total   int
	Balance int
}

// Store is the in-memory ledger with whole-file JSON persistence.
// Every mutation rewrites the complete document.
type Store struct {
	mu    sync.RWMutex
	js    *jsonstore.Store
	cfg   *config.Config
	users map[string]*economy.User

	now     func() time.Time
	randInt func(min, max int) int // inclusive range
}

// NewStore loads the ledger document and returns the store.
func NewStore(js *jsonstore.Store, cfg *config.Config) (*Store, error) {
	s := &Store{
		js:    js,
		cfg:   cfg,
		users: make(map[string]*economy.User),
		now:   time.Now,
		randInt: func(min, max int) int {
			if max <= min {
				return min
			}
			return min + rand.Intn(max-min+1)
		},
	}
	if err := js.Load(FileName, &s.users); err != nil {
		return nil, errors.Wrap(err, "failed to load economy data")
	}
	// Older documents may miss the userId field inside each record.
	for id, u := range s.users {
		if u.UserID == "" {
			u.UserID = id
		}
	}
	zlog.Info().Msgf("economy ledger loaded: users=%d", len(s.users))
	return s, nil
}

func (s *Store) save() error {
	return s.js.Save(FileName, s.users)
}

// Save persists the current ledger. Used by shutdown and backup paths.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save()
}

// getOrCreate returns the account, creating a zeroed one if absent.
// Caller must hold the lock.
func (s *Store) getOrCreate(userID string) *economy.User {
	u, ok := s.users[userID]
	if !ok {
		u = economy.NewUser(userID)
		s.users[userID] = u
	}
	return u
}

// GetUser returns a copy of the user's account, creating it if absent.
func (s *Store) GetUser(userID string) (economy.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getOrCreate(userID)
	if err := s.save(); err != nil {
		return economy.User{}, err
	}
	return *u, nil
}

// AddBalance credits amount to the user and returns the updated account.
func (s *Store) AddBalance(userID string, amount int) (economy.User, error) {
	if amount <= 0 {
		return economy.User{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getOrCreate(userID)
	u.Credit(amount)
	if err := s.save(); err != nil {
		return economy.User{}, err
	}
	return *u, nil
}

// CreditBalance credits amount to the user, discarding the updated account.
// It is the form the voice engine consumes when paying out presence rewards.
func (s *Store) CreditBalance(userID string, amount int) error {
	_, err := s.AddBalance(userID, amount)
	return err
}

// RemoveBalance debits up to amount from the user, flooring the balance at
// zero, and returns the updated account plus the amount actually removed.
func (s *Store) RemoveBalance(userID string, amount int) (economy.User, int, error) {
	if amount <= 0 {
		return economy.User{}, 0, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getOrCreate(userID)
	removed := u.Debit(amount)
	if err := s.save(); err != nil {
		return economy.User{}, 0, err
	}
	return *u, removed, nil
}

// Transfer moves amount between two accounts after validating the transfer
// rules. The sender must hold the full amount.
func (s *Store) Transfer(fromID, toID string, amount int) (from, to economy.User, err error) {
	if fromID == toID {
		return from, to, ErrSelfTransfer
	}
	if amount <= 0 {
		return from, to, ErrInvalidAmount
	}
	tr := s.cfg.Economy.Transfer
	if amount < tr.MinAmount {
		return from, to, ErrBelowMinimum
	}
	if tr.MaxAmount > 0 && amount > tr.MaxAmount {
		return from, to, ErrAboveMaximum
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.getOrCreate(fromID)
	if sender.Balance < amount {
		return from, to, ErrInsufficientFunds
	}
	receiver := s.getOrCreate(toID)

	sender.Balance -= amount
	sender.TotalSpent += amount
	receiver.Credit(amount)

	if err := s.save(); err != nil {
		return from, to, err
	}
	return *sender, *receiver, nil
}

// CanClaimDaily reports whether the user's daily reward is available.
func (s *Store) CanClaimDaily(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return true
	}
	return u.CanClaimDaily(s.now())
}

// ClaimDaily claims the daily reward: configured base plus a random bonus.
// The reward resets at midnight.
func (s *Store) ClaimDaily(userID string) (DailyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u := s.getOrCreate(userID)
	if !u.CanClaimDaily(now) {
		return DailyResult{}, ErrDailyAlreadyClaimed
	}

	d := s.cfg.Economy.Daily
	bonus := s.randInt(d.BonusMin, d.BonusMax)
	total := d.BaseAmount + bonus
	u.ClaimDaily(total, now)

	if err := s.save(); err != nil {
		return DailyResult{}, err
	}
	zlog.Info().Msgf("daily claimed: user=%s total=%d bonus=%d", userID, total, bonus)
	return DailyResult{Base: d.BaseAmount, Bonus: bonus, Total: total, Balance: u.Balance}, nil
}

// AddMessage counts a qualifying message and pays the activity reward on
// every Nth message, subject to the cooldown. Returns the reward paid, or 0.
func (s *Store) AddMessage(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m := s.cfg.Economy.Messages
	u := s.getOrCreate(userID)
	u.MessageCount++

	reward := 0
	if u.MessageCount%m.MessagesForReward == 0 && u.CanGainMessageReward(now, s.cfg.MessageRewardCooldown()) {
		reward = s.randInt(m.RewardMin, m.RewardMax)
		u.Credit(reward)
		t := now
		u.LastMessageReward = &t
	}

	if err := s.save(); err != nil {
		return 0, err
	}
	return reward, nil
}

// Leaderboard returns up to limit accounts ordered by balance descending.
// Ties break by user ID for a stable order.
func (s *Store) Leaderboard(limit int) []economy.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]economy.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats summarizes the ledger for the overview command.
func (s *Store) Stats() (users, totalBalance, totalEarned int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		totalBalance += u.Balance
		totalEarned += u.TotalEarned
	}
	return len(s.users), totalBalance, totalEarned
}
