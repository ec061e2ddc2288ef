// Package migration imports legacy economy records into the current schema.
package migration

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/app/backup"
	appeconomy "github.com/arca-org/arca-bot/internal/app/economy"
	"github.com/arca-org/arca-bot/internal/domain/economy"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

// legacyUser is one record of the old snake_case export. Fields arrive
// loosely typed (user_id may be a number or a string), so the decode is weak.
type legacyUser struct {
	UserID            string  `mapstructure:"user_id"`
	Balance           int     `mapstructure:"balance"`
	TotalEarned       int     `mapstructure:"total_earned"`
	TotalSpent        int     `mapstructure:"total_spent"`
	MessageCount      int     `mapstructure:"message_count"`
	LastDaily         *string `mapstructure:"last_daily"`
	LastMessageReward *string `mapstructure:"last_message_reward"`
}

// Result summarizes one migration run.
type Result struct {
	Migrated int // new users created
	Updated  int // existing users replaced by better legacy data
	Kept     int // existing users left untouched
	Total    int // users in the ledger afterwards
}

// Analysis summarizes a legacy export without touching the ledger.
type Analysis struct {
	Users        int
	TotalBalance int
	TotalEarned  int
	WithDaily    int
}

// Migrator imports legacy exports into the economy document.
type Migrator struct {
	js      *jsonstore.Store
	backups *backup.Manager
}

// NewMigrator returns a migrator over the given data directory.
func NewMigrator(js *jsonstore.Store, backups *backup.Manager) *Migrator {
	return &Migrator{js: js, backups: backups}
}

// loadLegacy parses a legacy export file. Numbers are decoded via
// json.Number so 64-bit user IDs survive without float rounding.
func loadLegacy(path string) (map[string]legacyUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read legacy export")
	}

	var raw struct {
		User map[string]map[string]any `json:"user"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse legacy export")
	}

	out := make(map[string]legacyUser, len(raw.User))
	for key, fields := range raw.User {
		var lu legacyUser
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &lu,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to build decoder")
		}
		if err := decoder.Decode(fields); err != nil {
			zlog.Warn().Msgf("skipping undecodable legacy record: key=%s err=%v", key, err)
			continue
		}
		if lu.UserID == "" {
			lu.UserID = key
		}
		out[lu.UserID] = lu
	}
	return out, nil
}

// Analyze reports what a legacy export contains without migrating it.
func (m *Migrator) Analyze(path string) (Analysis, error) {
	legacy, err := loadLegacy(path)
	if err != nil {
		return Analysis{}, err
	}

	a := Analysis{Users: len(legacy)}
	for _, lu := range legacy {
		a.TotalBalance += lu.Balance
		a.TotalEarned += lu.TotalEarned
		if lu.LastDaily != nil && *lu.LastDaily != "" {
			a.WithDaily++
		}
	}
	return a, nil
}

// Migrate imports a legacy export into the economy document. The current
// document is backed up first. Existing users are replaced only when the
// legacy record shows more progress than the current one.
func (m *Migrator) Migrate(path string) (Result, error) {
	legacy, err := loadLegacy(path)
	if err != nil {
		return Result{}, err
	}

	if _, err := m.backups.Create(backup.TypeEconomy, "automatic backup before migration"); err != nil {
		return Result{}, errors.Wrap(err, "failed to back up before migration")
	}

	current := make(map[string]*economy.User)
	if err := m.js.Load(appeconomy.FileName, &current); err != nil {
		return Result{}, errors.Wrap(err, "failed to load economy data")
	}

	var res Result
	for userID, lu := range legacy {
		existing, ok := current[userID]
		if !ok {
			current[userID] = convert(lu)
			res.Migrated++
			continue
		}
		if legacyWins(lu, existing) {
			current[userID] = convert(lu)
			res.Updated++
		} else {
			res.Kept++
		}
	}
	res.Total = len(current)

	if err := m.js.Save(appeconomy.FileName, current); err != nil {
		return Result{}, errors.Wrap(err, "failed to save migrated data")
	}
	zlog.Info().Msgf("migration finished: migrated=%d updated=%d kept=%d total=%d",
		res.Migrated, res.Updated, res.Kept, res.Total)
	return res, nil
}

// legacyWins reports whether the legacy record shows more progress than the
// current one.
func legacyWins(lu legacyUser, cur *economy.User) bool {
	return lu.Balance > cur.Balance ||
		lu.TotalEarned > cur.TotalEarned ||
		lu.MessageCount > cur.MessageCount
}

func convert(lu legacyUser) *economy.User {
	return &economy.User{
		UserID:            lu.UserID,
		Balance:           lu.Balance,
		LastDaily:         parseTime(lu.LastDaily),
		TotalEarned:       lu.TotalEarned,
		TotalSpent:        lu.TotalSpent,
		MessageCount:      lu.MessageCount,
		LastMessageReward: parseTime(lu.LastMessageReward),
	}
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}
