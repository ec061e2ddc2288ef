// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Bot     BotConfig     `yaml:"bot"`
	Voice   VoiceConfig   `yaml:"voice"`
	Economy EconomyConfig `yaml:"economy"`
	Raffle  RaffleConfig  `yaml:"raffle"`
	Data    DataConfig    `yaml:"data"`
	Health  HealthConfig  `yaml:"health"`
	Logging LoggingConfig `yaml:"logging"`
}

// BotConfig represents Discord connection and permission configuration.
type BotConfig struct {
	Token         string   `yaml:"token" validate:"required"`
	CommandPrefix string   `yaml:"command_prefix" default:"!"`
	AdminUserIDs  []string `yaml:"admin_user_ids"`
	AdminRoleIDs  []string `yaml:"admin_role_ids"`
	StrictAdmin   bool     `yaml:"strict_admin"`
}

// VoiceConfig represents voice presence tracking configuration.
type VoiceConfig struct {
	Enabled           bool                 `yaml:"enabled"`
	Category          string               `yaml:"category" validate:"required"`
	ACPerHour         int                  `yaml:"ac_per_hour" default:"20" validate:"gte=0"`
	MinTimeForReward  int                  `yaml:"min_time_for_reward_min" default:"3" validate:"gte=0"`
	RewardIntervalMin int                  `yaml:"reward_interval_min" default:"1" validate:"gte=1"`
	StatusMessages    StatusMessagesConfig `yaml:"status_messages"`
	SendExitSummary   bool                 `yaml:"send_exit_summary"`
	// Serialized absence records still carry this; no transition reads it.
	MaxAbsenceMinutes int `yaml:"max_absence_minutes" default:"10"`
}

// StatusMessagesConfig represents the per-channel roster embed configuration.
type StatusMessagesConfig struct {
	Enabled          bool `yaml:"enabled"`
	MaxMessageAgeMin int  `yaml:"max_message_age_min" default:"10" validate:"gte=1"`
}

// EconomyConfig represents currency economy configuration.
type EconomyConfig struct {
	Daily    DailyConfig    `yaml:"daily"`
	Messages MessagesConfig `yaml:"messages"`
	Transfer TransferConfig `yaml:"transfer"`
}

// DailyConfig represents the daily reward configuration.
type DailyConfig struct {
	BaseAmount int `yaml:"base_amount" default:"1000" validate:"gte=0"`
	BonusMin   int `yaml:"bonus_min" default:"100" validate:"gte=0"`
	BonusMax   int `yaml:"bonus_max" default:"600" validate:"gte=0"`
}

// MessagesConfig represents message-activity reward configuration.
type MessagesConfig struct {
	MessagesForReward int `yaml:"messages_for_reward" default:"10" validate:"gte=1"`
	RewardMin         int `yaml:"reward_min" default:"25" validate:"gte=0"`
	RewardMax         int `yaml:"reward_max" default:"75" validate:"gte=0"`
	CooldownMinutes   int `yaml:"cooldown_minutes" default:"5" validate:"gte=0"`
	MinMessageLength  int `yaml:"min_message_length" default:"5" validate:"gte=0"`
}

// TransferConfig represents peer transfer configuration.
// MaxAmount of 0 means no upper limit.
type TransferConfig struct {
	MinAmount int `yaml:"min_amount" default:"1" validate:"gte=1"`
	MaxAmount int `yaml:"max_amount" validate:"gte=0"`
}

// RaffleConfig represents raffle configuration.
type RaffleConfig struct {
	PriceMultiplier     float64 `yaml:"price_multiplier" default:"1.1" validate:"gte=1"`
	MinFirstTicketPrice int     `yaml:"min_first_ticket_price" default:"1" validate:"gte=1"`
	MaxFirstTicketPrice int     `yaml:"max_first_ticket_price" default:"10000" validate:"gte=1"`
	MaxTicketsPerUser   int     `yaml:"max_tickets_per_user" default:"50" validate:"gte=0"`
	MaxParticipants     int     `yaml:"max_participants" default:"100" validate:"gte=0"`
	CleanupAfterDays    int     `yaml:"cleanup_after_days" default:"30" validate:"gte=1"`
}

// DataConfig represents persistence configuration.
type DataConfig struct {
	Dir         string `yaml:"dir" default:"data"`
	BackupsKeep int    `yaml:"backups_keep" default:"10" validate:"gte=1"`
}

// HealthConfig represents the health endpoint configuration.
type HealthConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Output string `yaml:"output" default:"stdout"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("HEALTH_ADDR"); v != "" {
		c.Health.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateRangeConsistency(); err != nil {
		return err
	}

	return nil
}

// validateRangeConsistency checks that min/max pairs are ordered.
func (c *Config) validateRangeConsistency() error {
	if c.Economy.Daily.BonusMax < c.Economy.Daily.BonusMin {
		return errors.Newf("daily bonus_max (%d) must not be below bonus_min (%d)",
			c.Economy.Daily.BonusMax, c.Economy.Daily.BonusMin)
	}
	if c.Economy.Messages.RewardMax < c.Economy.Messages.RewardMin {
		return errors.Newf("message reward_max (%d) must not be below reward_min (%d)",
			c.Economy.Messages.RewardMax, c.Economy.Messages.RewardMin)
	}
	if c.Raffle.MaxFirstTicketPrice < c.Raffle.MinFirstTicketPrice {
		return errors.Newf("raffle max_first_ticket_price (%d) must not be below min_first_ticket_price (%d)",
			c.Raffle.MaxFirstTicketPrice, c.Raffle.MinFirstTicketPrice)
	}
	if c.Economy.Transfer.MaxAmount != 0 && c.Economy.Transfer.MaxAmount < c.Economy.Transfer.MinAmount {
		return errors.Newf("transfer max_amount (%d) must not be below min_amount (%d)",
			c.Economy.Transfer.MaxAmount, c.Economy.Transfer.MinAmount)
	}
	return nil
}

// IsAdminUser checks if the given user ID is a configured admin user.
func (c *Config) IsAdminUser(userID string) bool {
	for _, id := range c.Bot.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasAdminRole checks if any of the given role IDs is a configured admin role.
func (c *Config) HasAdminRole(roleIDs []string) bool {
	for _, roleID := range roleIDs {
		for _, id := range c.Bot.AdminRoleIDs {
			if id == roleID {
				return true
			}
		}
	}
	return false
}

// IsTrackableCategory checks a category name against the configured voice
// category, case-insensitively.
func (c *Config) IsTrackableCategory(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(c.Voice.Category))
}

// RewardInterval returns the accrual tick interval.
func (c *Config) RewardInterval() time.Duration {
	return time.Duration(c.Voice.RewardIntervalMin) * time.Minute
}

// MinTimeForReward returns the grace period before a session starts earning.
func (c *Config) MinTimeForReward() time.Duration {
	return time.Duration(c.Voice.MinTimeForReward) * time.Minute
}

// MaxStatusMessageAge returns the maximum roster embed age before recreation.
func (c *Config) MaxStatusMessageAge() time.Duration {
	return time.Duration(c.Voice.StatusMessages.MaxMessageAgeMin) * time.Minute
}

// MessageRewardCooldown returns the cooldown between message-activity rewards.
func (c *Config) MessageRewardCooldown() time.Duration {
	return time.Duration(c.Economy.Messages.CooldownMinutes) * time.Minute
}
