// Package raffle provides the raffle domain entity and ticket pricing.
package raffle

import (
	"math"
	"time"
)

// Status values of a raffle.
const (
	StatusActive    = "active"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)

// Participant represents one buyer in a raffle.
type Participant struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	TicketCount int    `json:"ticketCount"`
	TotalSpent  int    `json:"totalSpent"`
}

// Raffle represents a channel-bound ticket raffle.
// Participants keep insertion order; the weighted draw walks them in order.
type Raffle struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	CreatorID        string        `json:"creatorId"`
	ChannelID        string        `json:"channelId"`
	MessageID        string        `json:"messageId"`
	FirstTicketPrice int           `json:"firstTicketPrice"`
	Participants     []Participant `json:"participants"`
	Status           string        `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	EndedAt          *time.Time    `json:"endedAt,omitempty"`
	WinnerID         string        `json:"winnerId,omitempty"`
	TotalPrize       int           `json:"totalPrize"`
}

// New creates an active raffle.
func New(id, title, creatorID, channelID string, firstTicketPrice int, now time.Time) *Raffle {
	return &Raffle{
		ID:               id,
		Title:            title,
		CreatorID:        creatorID,
		ChannelID:        channelID,
		FirstTicketPrice: firstTicketPrice,
		Participants:     []Participant{},
		Status:           StatusActive,
		CreatedAt:        now,
	}
}

// TicketPrice returns the price of the next ticket for a user who already
// owns ticketsOwned tickets. Each ticket costs the first-ticket price scaled
// by multiplier^ticketsOwned, rounded to the nearest whole unit.
func TicketPrice(firstTicketPrice, ticketsOwned int, multiplier float64) int {
	if ticketsOwned < 0 {
		ticketsOwned = 0
	}
	return int(math.Round(float64(firstTicketPrice) * math.Pow(multiplier, float64(ticketsOwned))))
}

// TotalPrice returns the combined cost of buying count tickets in a row,
// starting from ticketsOwned already held.
func TotalPrice(firstTicketPrice, ticketsOwned, count int, multiplier float64) int {
	total := 0
	for i := 0; i < count; i++ {
		total += TicketPrice(firstTicketPrice, ticketsOwned+i, multiplier)
	}
	return total
}

// Participant returns the participant entry for the given user, or nil.
func (r *Raffle) Participant(userID string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i]
		}
	}
	return nil
}

// AddTickets records a purchase, appending a new participant if needed.
func (r *Raffle) AddTickets(userID, username string, count, spent int) {
	if p := r.Participant(userID); p != nil {
		p.TicketCount += count
		p.TotalSpent += spent
		p.Username = username
		return
	}
	r.Participants = append(r.Participants, Participant{
		UserID:      userID,
		Username:    username,
		TicketCount: count,
		TotalSpent:  spent,
	})
}

// TotalTickets returns the number of tickets sold.
func (r *Raffle) TotalTickets() int {
	total := 0
	for _, p := range r.Participants {
		total += p.TicketCount
	}
	return total
}

// Pot returns the total amount spent by all participants.
func (r *Raffle) Pot() int {
	total := 0
	for _, p := range r.Participants {
		total += p.TotalSpent
	}
	return total
}

// WinnerByTicket resolves a drawn ticket number in [1, TotalTickets] to a
// participant by walking the insertion-ordered list and accumulating counts.
func (r *Raffle) WinnerByTicket(ticket int) *Participant {
	acc := 0
	for i := range r.Participants {
		acc += r.Participants[i].TicketCount
		if ticket <= acc {
			return &r.Participants[i]
		}
	}
	return nil
}

// IsActive reports whether tickets can still be bought.
func (r *Raffle) IsActive() bool {
	return r.Status == StatusActive
}
