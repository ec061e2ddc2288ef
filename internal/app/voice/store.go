// Package voice provides voice presence tracking: the persisted session
// snapshot and the engine that turns gateway events into currency rewards.
package voice

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/domain/voice"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

// FileName is the snapshot document name under the data directory.
const FileName = "voice_tracking.json"

// Staleness bounds used by Cleanup.
const (
	maxSessionAge = 24 * time.Hour
	maxAbsenceAge = 2 * time.Hour
	// A snapshot saved within this window means the process restarted
	// rather than being down for a while.
	recentRestartWindow = 15 * time.Minute
)

// ErrSessionExists is returned when a user already has an active session.
var ErrSessionExists = errors.New("user already has an active session")

// snapshot is the persisted document shape.
type snapshot struct {
	ActiveSessions  map[string]*voice.Session       `json:"activeSessions"`
	AbsentUsers     map[string]*voice.AbsentUser    `json:"absentUsers"`
	ChannelStatuses map[string]*voice.ChannelStatus `json:"channelStatuses"`
	LastSave        time.Time                       `json:"lastSave"`
}

// Store holds the live tracking state and persists it as one JSON document.
// Absences are carried through load/save for older snapshots but nothing
// creates them anymore.
type Store struct {
	mu   sync.RWMutex
	js   *jsonstore.Store
	snap snapshot

	now func() time.Time
}

// NewStore loads the snapshot document and returns the store.
func NewStore(js *jsonstore.Store) (*Store, error) {
	s := &Store{
		js: js,
		snap: snapshot{
			ActiveSessions:  make(map[string]*voice.Session),
			AbsentUsers:     make(map[string]*voice.AbsentUser),
			ChannelStatuses: make(map[string]*voice.ChannelStatus),
		},
		now: time.Now,
	}
	if err := js.Load(FileName, &s.snap); err != nil {
		return nil, errors.Wrap(err, "failed to load voice tracking data")
	}
	if s.snap.ActiveSessions == nil {
		s.snap.ActiveSessions = make(map[string]*voice.Session)
	}
	if s.snap.AbsentUsers == nil {
		s.snap.AbsentUsers = make(map[string]*voice.AbsentUser)
	}
	if s.snap.ChannelStatuses == nil {
		s.snap.ChannelStatuses = make(map[string]*voice.ChannelStatus)
	}
	zlog.Info().Msgf("voice tracking loaded: sessions=%d statuses=%d",
		len(s.snap.ActiveSessions), len(s.snap.ChannelStatuses))
	return s, nil
}

// save rewrites the snapshot document. Caller must hold the write lock.
func (s *Store) save() error {
	s.snap.LastSave = s.now()
	return s.js.Save(FileName, &s.snap)
}

// Save persists the current snapshot.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// StartSession opens a session for the user. A user holds at most one.
func (s *Store) StartSession(userID, username, guildID, channelID, channelName string) (voice.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.ActiveSessions[userID]; ok {
		return voice.Session{}, ErrSessionExists
	}

	sess := voice.NewSession(userID, username, guildID, channelID, channelName, s.now())
	s.snap.ActiveSessions[userID] = sess
	if err := s.save(); err != nil {
		return voice.Session{}, err
	}
	return *sess, nil
}

// EndSession closes the user's session and returns it along with its total
// length. Returns false if no session was active.
func (s *Store) EndSession(userID string) (voice.Session, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.snap.ActiveSessions[userID]
	if !ok {
		return voice.Session{}, 0, false
	}
	delete(s.snap.ActiveSessions, userID)

	total := sess.Duration(s.now())
	sess.TotalMinutes = int(total.Minutes())
	sess.IsActive = false
	if err := s.save(); err != nil {
		zlog.Error().Msgf("failed to persist session end: user=%s err=%v", userID, err)
	}
	return *sess, total, true
}

// ActiveSession returns a copy of the user's session, if any.
func (s *Store) ActiveSession(userID string) (voice.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.snap.ActiveSessions[userID]
	if !ok {
		return voice.Session{}, false
	}
	return *sess, true
}

// AllActiveSessions returns copies of every active session.
func (s *Store) AllActiveSessions() []voice.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]voice.Session, 0, len(s.snap.ActiveSessions))
	for _, sess := range s.snap.ActiveSessions {
		out = append(out, *sess)
	}
	return out
}

// SessionsInChannel returns copies of the active sessions in one channel.
func (s *Store) SessionsInChannel(channelID string) []voice.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []voice.Session
	for _, sess := range s.snap.ActiveSessions {
		if sess.ChannelID == channelID {
			out = append(out, *sess)
		}
	}
	return out
}

// TouchSession refreshes the user's last-activity timestamp.
func (s *Store) TouchSession(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.snap.ActiveSessions[userID]
	if !ok {
		return
	}
	sess.Touch(s.now())
	if err := s.save(); err != nil {
		zlog.Error().Msgf("failed to persist session activity: user=%s err=%v", userID, err)
	}
}

// MoveSession points the user's session at another channel, preserving the
// start time and earned total.
func (s *Store) MoveSession(userID, channelID, channelName string) (voice.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.snap.ActiveSessions[userID]
	if !ok {
		return voice.Session{}, false
	}
	sess.MoveTo(channelID, channelName, s.now())
	if err := s.save(); err != nil {
		zlog.Error().Msgf("failed to persist session move: user=%s err=%v", userID, err)
	}
	return *sess, true
}

// SetSessionReward records the session's cumulative earned total.
func (s *Store) SetSessionReward(userID string, total int) (voice.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.snap.ActiveSessions[userID]
	if !ok {
		return voice.Session{}, false
	}
	sess.ACEarned = total
	if err := s.save(); err != nil {
		zlog.Error().Msgf("failed to persist session reward: user=%s err=%v", userID, err)
	}
	return *sess, true
}

// ChannelStatus returns the roster embed record for a channel.
func (s *Store) ChannelStatus(channelID string) (voice.ChannelStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.snap.ChannelStatuses[channelID]
	if !ok {
		return voice.ChannelStatus{}, false
	}
	return *st, true
}

// SetChannelStatus records the roster embed posted in a channel and the users
// it currently shows.
func (s *Store) SetChannelStatus(channelID, messageID string, activeUsers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.ChannelStatuses[channelID] = &voice.ChannelStatus{
		ChannelID:   channelID,
		MessageID:   messageID,
		LastUpdate:  s.now(),
		ActiveUsers: activeUsers,
	}
	if err := s.save(); err != nil {
		zlog.Error().Msgf("failed to persist channel status: channel=%s err=%v", channelID, err)
	}
}

// RemoveChannelStatus drops the roster embed record for a channel.
func (s *Store) RemoveChannelStatus(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.ChannelStatuses[channelID]; !ok {
		return
	}
	delete(s.snap.ChannelStatuses, channelID)
	if err := s.save(); err != nil {
		zlog.Error().Msgf("failed to persist channel status removal: channel=%s err=%v", channelID, err)
	}
}

// AllChannelStatuses returns copies of every roster embed record.
func (s *Store) AllChannelStatuses() []voice.ChannelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]voice.ChannelStatus, 0, len(s.snap.ChannelStatuses))
	for _, st := range s.snap.ChannelStatuses {
		out = append(out, *st)
	}
	return out
}

// Cleanup drops sessions older than 24 hours and absence records older than
// 2 hours. Returns how many entries were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.snap.ActiveSessions {
		if now.Sub(sess.StartTime) > maxSessionAge {
			delete(s.snap.ActiveSessions, id)
			removed++
			zlog.Warn().Msgf("dropped stale session: user=%s age=%v", id, now.Sub(sess.StartTime))
		}
	}
	for id, a := range s.snap.AbsentUsers {
		if now.Sub(a.LeftAt) > maxAbsenceAge {
			delete(s.snap.AbsentUsers, id)
			removed++
		}
	}
	if removed > 0 {
		if err := s.save(); err != nil {
			zlog.Error().Msgf("failed to persist cleanup: err=%v", err)
		}
	}
	return removed
}

// IsRecentRestart reports whether the snapshot was saved recently enough that
// persisted sessions are worth recovering.
func (s *Store) IsRecentRestart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snap.LastSave.IsZero() {
		return false
	}
	return s.now().Sub(s.snap.LastSave) <= recentRestartWindow
}

// LastSave returns when the snapshot was last written.
func (s *Store) LastSave() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.LastSave
}
