package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_Credit(t *testing.T) {
	tests := []struct {
		name        string
		start       User
		amount      int
		wantBalance int
		wantEarned  int
	}{
		{name: "positive amount", start: User{Balance: 100, TotalEarned: 100}, amount: 50, wantBalance: 150, wantEarned: 150},
		{name: "zero ignored", start: User{Balance: 100, TotalEarned: 100}, amount: 0, wantBalance: 100, wantEarned: 100},
		{name: "negative ignored", start: User{Balance: 100, TotalEarned: 100}, amount: -30, wantBalance: 100, wantEarned: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.start
			u.Credit(tt.amount)
			assert.Equal(t, tt.wantBalance, u.Balance)
			assert.Equal(t, tt.wantEarned, u.TotalEarned)
		})
	}
}

func TestUser_Debit_FloorsAtZero(t *testing.T) {
	tests := []struct {
		name        string
		balance     int
		amount      int
		wantRemoved int
		wantBalance int
		wantSpent   int
	}{
		{name: "full debit", balance: 100, amount: 40, wantRemoved: 40, wantBalance: 60, wantSpent: 40},
		{name: "debit exceeds balance", balance: 30, amount: 100, wantRemoved: 30, wantBalance: 0, wantSpent: 30},
		{name: "zero balance", balance: 0, amount: 10, wantRemoved: 0, wantBalance: 0, wantSpent: 0},
		{name: "negative amount ignored", balance: 50, amount: -10, wantRemoved: 0, wantBalance: 50, wantSpent: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{Balance: tt.balance}
			removed := u.Debit(tt.amount)
			assert.Equal(t, tt.wantRemoved, removed)
			assert.Equal(t, tt.wantBalance, u.Balance)
			assert.Equal(t, tt.wantSpent, u.TotalSpent)
		})
	}
}

func TestUser_CanClaimDaily_MidnightReset(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastDaily *time.Time
		want      bool
	}{
		{name: "never claimed", lastDaily: nil, want: true},
		{name: "claimed earlier today", lastDaily: timePtr(time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC)), want: false},
		{name: "claimed late yesterday", lastDaily: timePtr(time.Date(2025, 3, 9, 23, 50, 0, 0, time.UTC)), want: true},
		{name: "claimed a year ago same day", lastDaily: timePtr(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{LastDaily: tt.lastDaily}
			assert.Equal(t, tt.want, u.CanClaimDaily(now))
		})
	}
}

func TestUser_ClaimDaily(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	u := User{Balance: 10}

	u.ClaimDaily(1200, now)

	assert.Equal(t, 1210, u.Balance)
	assert.Equal(t, 1200, u.TotalEarned)
	assert.Equal(t, now, *u.LastDaily)
	assert.False(t, u.CanClaimDaily(now), "claim should not be available again the same day")
	assert.True(t, u.CanClaimDaily(now.Add(24*time.Hour)))
}

func TestUser_CanGainMessageReward(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Minute

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{name: "never rewarded", last: nil, want: true},
		{name: "inside cooldown", last: timePtr(now.Add(-2 * time.Minute)), want: false},
		{name: "exactly at cooldown", last: timePtr(now.Add(-5 * time.Minute)), want: true},
		{name: "past cooldown", last: timePtr(now.Add(-10 * time.Minute)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{LastMessageReward: tt.last}
			assert.Equal(t, tt.want, u.CanGainMessageReward(now, cooldown))
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
