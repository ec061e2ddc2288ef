package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Config{
		Bot: BotConfig{
			Token: "test-token",
		},
		Voice: VoiceConfig{
			Enabled:  true,
			Category: "ARCA VOICE",
		},
	}
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing bot token",
			mutate:  func(c *Config) { c.Bot.Token = "" },
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name:    "missing voice category",
			mutate:  func(c *Config) { c.Voice.Category = "" },
			wantErr: true,
			errMsg:  "Category",
		},
		{
			name:    "negative ac per hour",
			mutate:  func(c *Config) { c.Voice.ACPerHour = -1 },
			wantErr: true,
			errMsg:  "ACPerHour",
		},
		{
			name:    "zero reward interval",
			mutate:  func(c *Config) { c.Voice.RewardIntervalMin = 0 },
			wantErr: true,
			errMsg:  "RewardIntervalMin",
		},
		{
			name: "daily bonus range inverted",
			mutate: func(c *Config) {
				c.Economy.Daily.BonusMin = 500
				c.Economy.Daily.BonusMax = 100
			},
			wantErr: true,
			errMsg:  "bonus_max",
		},
		{
			name: "message reward range inverted",
			mutate: func(c *Config) {
				c.Economy.Messages.RewardMin = 80
				c.Economy.Messages.RewardMax = 20
			},
			wantErr: true,
			errMsg:  "reward_max",
		},
		{
			name: "raffle price bounds inverted",
			mutate: func(c *Config) {
				c.Raffle.MinFirstTicketPrice = 100
				c.Raffle.MaxFirstTicketPrice = 10
			},
			wantErr: true,
			errMsg:  "max_first_ticket_price",
		},
		{
			name: "transfer max below min",
			mutate: func(c *Config) {
				c.Economy.Transfer.MinAmount = 10
				c.Economy.Transfer.MaxAmount = 5
			},
			wantErr: true,
			errMsg:  "max_amount",
		},
		{
			name: "transfer max zero means unlimited",
			mutate: func(c *Config) {
				c.Economy.Transfer.MinAmount = 10
				c.Economy.Transfer.MaxAmount = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := []byte(`
bot:
  token: file-token
voice:
  enabled: true
  category: Arca Voice
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	t.Setenv("BOT_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Bot.Token, "env var should win over file value")
	assert.Equal(t, "!", cfg.Bot.CommandPrefix)
	assert.Equal(t, 20, cfg.Voice.ACPerHour)
	assert.Equal(t, 3, cfg.Voice.MinTimeForReward)
	assert.Equal(t, 1000, cfg.Economy.Daily.BaseAmount)
	assert.Equal(t, 100, cfg.Economy.Daily.BonusMin)
	assert.Equal(t, 600, cfg.Economy.Daily.BonusMax)
	assert.Equal(t, 10, cfg.Economy.Messages.MessagesForReward)
	assert.Equal(t, 1.1, cfg.Raffle.PriceMultiplier)
	assert.Equal(t, 10, cfg.Data.BackupsKeep)
	assert.Equal(t, ":8080", cfg.Health.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_IsTrackableCategory(t *testing.T) {
	tests := []struct {
		name     string
		category string
		input    string
		want     bool
	}{
		{name: "exact match", category: "ARCA VOICE", input: "ARCA VOICE", want: true},
		{name: "case insensitive", category: "ARCA VOICE", input: "arca voice", want: true},
		{name: "surrounding whitespace", category: "ARCA VOICE", input: "  Arca Voice  ", want: true},
		{name: "different category", category: "ARCA VOICE", input: "General", want: false},
		{name: "empty input", category: "ARCA VOICE", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Voice.Category = tt.category
			assert.Equal(t, tt.want, cfg.IsTrackableCategory(tt.input))
		})
	}
}

func TestConfig_AdminChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.AdminUserIDs = []string{"111", "222"}
	cfg.Bot.AdminRoleIDs = []string{"900"}

	assert.True(t, cfg.IsAdminUser("111"))
	assert.False(t, cfg.IsAdminUser("333"))
	assert.True(t, cfg.HasAdminRole([]string{"100", "900"}))
	assert.False(t, cfg.HasAdminRole([]string{"100", "200"}))
	assert.False(t, cfg.HasAdminRole(nil))
}

func TestConfig_Durations(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, time.Minute, cfg.RewardInterval())
	assert.Equal(t, 3*time.Minute, cfg.MinTimeForReward())
	assert.Equal(t, 10*time.Minute, cfg.MaxStatusMessageAge())
	assert.Equal(t, 5*time.Minute, cfg.MessageRewardCooldown())
}
