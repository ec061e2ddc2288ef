// Package voice provides the voice presence domain entities and reward math.
package voice

import (
	"fmt"
	"time"
)

// Session represents one user's continuous presence in tracked voice channels.
// Field names follow the persisted snapshot schema.
type Session struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	GuildID      string    `json:"guildId"`
	ChannelID    string    `json:"channelId"`
	ChannelName  string    `json:"channelName"`
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	ACEarned     int       `json:"acEarned"`
	// TotalMinutes and IsActive are settled when the session ends. Live
	// sessions are deleted rather than flagged, but both fields stay in the
	// snapshot schema so older exports round-trip.
	TotalMinutes int  `json:"totalMinutes"`
	IsActive     bool `json:"isActive"`
}

// NewSession starts a session at the given instant.
func NewSession(userID, username, guildID, channelID, channelName string, now time.Time) *Session {
	return &Session{
		UserID:       userID,
		Username:     username,
		GuildID:      guildID,
		ChannelID:    channelID,
		ChannelName:  channelName,
		StartTime:    now,
		LastActivity: now,
		IsActive:     true,
	}
}

// Duration returns the elapsed time since the session started.
func (s *Session) Duration(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Minutes returns the whole minutes elapsed since the session started.
func (s *Session) Minutes(now time.Time) int {
	return int(s.Duration(now).Minutes())
}

// MoveTo records a move to another tracked channel. The start time and the
// earned total are preserved so accrual continues from the original join.
func (s *Session) MoveTo(channelID, channelName string, now time.Time) {
	s.ChannelID = channelID
	s.ChannelName = channelName
	s.LastActivity = now
}

// Touch refreshes the last-activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// AbsentUser records a user who briefly left a tracked channel.
// The absence feature is disabled; the type survives only so older
// snapshots still round-trip through the store.
type AbsentUser struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	GuildID     string    `json:"guildId"`
	ChannelID   string    `json:"channelId"`
	LeftAt      time.Time `json:"leftAt"`
	SessionData *Session  `json:"sessionData,omitempty"`
}

// ChannelStatus tracks the roster embed posted in a voice channel's chat.
type ChannelStatus struct {
	ChannelID   string    `json:"channelId"`
	MessageID   string    `json:"messageId"`
	LastUpdate  time.Time `json:"lastUpdate"`
	ActiveUsers []string  `json:"activeUsers"`
}

// CalculateReward returns the total earned for a session of the given length.
// The rate is applied to whole elapsed minutes and the result rounds down, so
// the total only ever grows in integer steps.
func CalculateReward(elapsed time.Duration, acPerHour int) int {
	minutes := int(elapsed.Minutes())
	if minutes <= 0 || acPerHour <= 0 {
		return 0
	}
	return minutes * acPerHour / 60
}

// FormatDuration renders an elapsed time as "2h 05m" or "45m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	hours := minutes / 60
	minutes %= 60
	if hours > 0 {
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
