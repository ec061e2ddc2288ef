// Package raffle provides raffle lifecycle management and the winner draw.
package raffle

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/domain/raffle"
	"github.com/arca-org/arca-bot/internal/infra/config"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

// FileName is the raffle document name under the data directory.
const FileName = "raffles.json"

// Sentinel errors returned by raffle operations.
var (
	ErrNotFound          = errors.New("raffle not found")
	ErrNotActive         = errors.New("raffle is not active")
	ErrActiveExists      = errors.New("channel already has an active raffle")
	ErrNoParticipants    = errors.New("raffle has no participants")
	ErrPriceOutOfBounds  = errors.New("first ticket price out of bounds")
	ErrMaxTicketsReached = errors.New("ticket limit reached for this user")
	ErrFull              = errors.New("raffle participant limit reached")
)

// Refund is one participant's reimbursement after a cancellation.
type Refund struct {
	UserID   string
	Username string
	Amount   int
}

// Store manages raffles with whole-file JSON persistence.
type Store struct {
	mu      sync.Mutex
	js      *jsonstore.Store
	cfg     *config.Config
	raffles map[string]*raffle.Raffle

	now     func() time.Time
	newID   func() string
	randInt func(min, max int) int // inclusive range
}

// NewStore loads the raffle document and returns the store.
func NewStore(js *jsonstore.Store, cfg *config.Config) (*Store, error) {
	s := &Store{
		js:      js,
		cfg:     cfg,
		raffles: make(map[string]*raffle.Raffle),
		now:     time.Now,
		newID:   uuid.NewString,
		randInt: func(min, max int) int {
			if max <= min {
				return min
			}
			return min + rand.Intn(max-min+1)
		},
	}
	if err := js.Load(FileName, &s.raffles); err != nil {
		return nil, errors.Wrap(err, "failed to load raffle data")
	}
	zlog.Info().Msgf("raffle store loaded: raffles=%d", len(s.raffles))
	return s, nil
}

func (s *Store) save() error {
	return s.js.Save(FileName, s.raffles)
}

// Create opens a raffle in the given channel. A channel holds at most one
// active raffle at a time.
func (s *Store) Create(title, creatorID, channelID string, firstTicketPrice int) (raffle.Raffle, error) {
	rc := s.cfg.Raffle
	if firstTicketPrice < rc.MinFirstTicketPrice || firstTicketPrice > rc.MaxFirstTicketPrice {
		return raffle.Raffle{}, ErrPriceOutOfBounds
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeInChannel(channelID) != nil {
		return raffle.Raffle{}, ErrActiveExists
	}

	r := raffle.New(s.newID(), title, creatorID, channelID, firstTicketPrice, s.now())
	s.raffles[r.ID] = r
	if err := s.save(); err != nil {
		return raffle.Raffle{}, err
	}
	zlog.Info().Msgf("raffle created: id=%s channel=%s price=%d", r.ID, channelID, firstTicketPrice)
	return *r, nil
}

// activeInChannel returns the channel's active raffle. Caller holds the lock.
func (s *Store) activeInChannel(channelID string) *raffle.Raffle {
	for _, r := range s.raffles {
		if r.ChannelID == channelID && r.IsActive() {
			return r
		}
	}
	return nil
}

// ActiveInChannel returns a copy of the channel's active raffle.
func (s *Store) ActiveInChannel(channelID string) (raffle.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.activeInChannel(channelID)
	if r == nil {
		return raffle.Raffle{}, ErrNotFound
	}
	return *r, nil
}

// QuoteTicket returns the price of the user's next ticket in the channel's
// active raffle, after checking the purchase limits.
func (s *Store) QuoteTicket(channelID, userID string) (raffle.Raffle, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.activeInChannel(channelID)
	if r == nil {
		return raffle.Raffle{}, 0, ErrNotFound
	}

	owned := 0
	if p := r.Participant(userID); p != nil {
		owned = p.TicketCount
	} else if s.cfg.Raffle.MaxParticipants > 0 && len(r.Participants) >= s.cfg.Raffle.MaxParticipants {
		return raffle.Raffle{}, 0, ErrFull
	}
	if s.cfg.Raffle.MaxTicketsPerUser > 0 && owned >= s.cfg.Raffle.MaxTicketsPerUser {
		return raffle.Raffle{}, 0, ErrMaxTicketsReached
	}

	price := raffle.TicketPrice(r.FirstTicketPrice, owned, s.cfg.Raffle.PriceMultiplier)
	return *r, price, nil
}

// RecordPurchase adds a paid ticket to the raffle. The caller has already
// debited the buyer for spent.
func (s *Store) RecordPurchase(raffleID, userID, username string, spent int) (raffle.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return raffle.Raffle{}, ErrNotFound
	}
	if !r.IsActive() {
		return raffle.Raffle{}, ErrNotActive
	}

	r.AddTickets(userID, username, 1, spent)
	if err := s.save(); err != nil {
		return raffle.Raffle{}, err
	}
	return *r, nil
}

// SetMessageID records the panel message posted for the raffle.
func (s *Store) SetMessageID(raffleID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return ErrNotFound
	}
	r.MessageID = messageID
	return s.save()
}

// Draw picks the winner: a uniform random ticket in [1, total] resolved by
// walking participants in insertion order. The raffle ends and the whole pot
// becomes the prize.
func (s *Store) Draw(raffleID string) (raffle.Raffle, raffle.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return raffle.Raffle{}, raffle.Participant{}, ErrNotFound
	}
	if !r.IsActive() {
		return raffle.Raffle{}, raffle.Participant{}, ErrNotActive
	}
	total := r.TotalTickets()
	if total == 0 {
		return raffle.Raffle{}, raffle.Participant{}, ErrNoParticipants
	}

	ticket := s.randInt(1, total)
	winner := r.WinnerByTicket(ticket)

	now := s.now()
	r.Status = raffle.StatusEnded
	r.EndedAt = &now
	r.WinnerID = winner.UserID
	r.TotalPrize = r.Pot()

	if err := s.save(); err != nil {
		return raffle.Raffle{}, raffle.Participant{}, err
	}
	zlog.Info().Msgf("raffle drawn: id=%s winner=%s ticket=%d/%d prize=%d",
		r.ID, winner.UserID, ticket, total, r.TotalPrize)
	return *r, *winner, nil
}

// Cancel aborts an active raffle and returns the refunds owed, one per
// participant for everything they spent.
func (s *Store) Cancel(raffleID string) (raffle.Raffle, []Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return raffle.Raffle{}, nil, ErrNotFound
	}
	if !r.IsActive() {
		return raffle.Raffle{}, nil, ErrNotActive
	}

	refunds := make([]Refund, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.TotalSpent > 0 {
			refunds = append(refunds, Refund{UserID: p.UserID, Username: p.Username, Amount: p.TotalSpent})
		}
	}

	now := s.now()
	r.Status = raffle.StatusCancelled
	r.EndedAt = &now

	if err := s.save(); err != nil {
		return raffle.Raffle{}, nil, err
	}
	zlog.Info().Msgf("raffle cancelled: id=%s refunds=%d", r.ID, len(refunds))
	return *r, refunds, nil
}

// CleanOld removes finished raffles older than the configured retention.
// Returns how many were removed.
func (s *Store) CleanOld() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -s.cfg.Raffle.CleanupAfterDays)
	removed := 0
	for id, r := range s.raffles {
		if r.IsActive() {
			continue
		}
		ended := r.CreatedAt
		if r.EndedAt != nil {
			ended = *r.EndedAt
		}
		if ended.Before(cutoff) {
			delete(s.raffles, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	return removed, nil
}

// List returns all raffles, active first, newest first within each group.
func (s *Store) List() []raffle.Raffle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]raffle.Raffle, 0, len(s.raffles))
	for _, r := range s.raffles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsActive() != out[j].IsActive() {
			return out[i].IsActive()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
