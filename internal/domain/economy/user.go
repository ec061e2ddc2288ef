// Package economy provides the user economy domain entity.
package economy

import "time"

// User represents one member's currency account.
// Field names follow the persisted document schema.
type User struct {
	UserID            string     `json:"userId"`
	Balance           int        `json:"balance"`
	LastDaily         *time.Time `json:"lastDaily"`
	TotalEarned       int        `json:"totalEarned"`
	TotalSpent        int        `json:"totalSpent"`
	MessageCount      int        `json:"messageCount"`
	LastMessageReward *time.Time `json:"lastMessageReward"`
}

// NewUser creates an account with a zero balance.
func NewUser(userID string) *User {
	return &User{
		UserID: userID,
	}
}

// Credit adds amount to the balance and the earned total.
// Non-positive amounts are ignored.
func (u *User) Credit(amount int) {
	if amount <= 0 {
		return
	}
	u.Balance += amount
	u.TotalEarned += amount
}

// Debit removes up to amount from the balance, flooring at zero.
// Returns the amount actually removed.
func (u *User) Debit(amount int) int {
	if amount <= 0 {
		return 0
	}
	removed := amount
	if removed > u.Balance {
		removed = u.Balance
	}
	u.Balance -= removed
	u.TotalSpent += removed
	return removed
}

// CanClaimDaily reports whether the daily reward is available.
// The reward resets at local midnight, not 24 hours after the last claim.
func (u *User) CanClaimDaily(now time.Time) bool {
	if u.LastDaily == nil {
		return true
	}
	last := u.LastDaily.In(now.Location())
	return last.Year() != now.Year() || last.YearDay() != now.YearDay()
}

// ClaimDaily credits the daily reward and records the claim time.
func (u *User) ClaimDaily(amount int, now time.Time) {
	u.Credit(amount)
	t := now
	u.LastDaily = &t
}

// CanGainMessageReward reports whether the message-activity cooldown has passed.
func (u *User) CanGainMessageReward(now time.Time, cooldown time.Duration) bool {
	if u.LastMessageReward == nil {
		return true
	}
	return now.Sub(*u.LastMessageReward) >= cooldown
}
