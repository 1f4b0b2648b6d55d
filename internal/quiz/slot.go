package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	kit "herald/internal/transport"
)

// ErrQuizActive is returned by TryInstall under PolicyReject while an
// unfinished quiz occupies the slot.
var ErrQuizActive = errors.New("quiz already active")

// Policy decides what TryInstall does when the slot is occupied.
type Policy int32

const (
	// PolicyReplace drops the unfinished quiz in favour of the new one.
	PolicyReplace Policy = iota
	// PolicyReject keeps the unfinished quiz and refuses the new one.
	PolicyReject
)

// ParsePolicy maps a config value ("replace", "reject") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return PolicyReplace, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyReplace, fmt.Errorf("unknown quiz policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "replace"
}

// Active is an installed quiz.
type Active struct {
	QuizID    uint32
	ItemID    uint32
	Answer    string
	ReplyWith string
	EndAt     *time.Time
	// ChannelID is the only channel whose messages are evaluated.
	ChannelID   string
	InstalledAt time.Time
}

// Expired reports whether the end time has been reached at now.
func (a Active) Expired(now time.Time) bool {
	return a.EndAt != nil && !now.Before(*a.EndAt)
}

// Outcome is the result of evaluating one message.
type Outcome int

const (
	// Ignored: no quiz, or the message is from another channel.
	Ignored Outcome = iota
	// NoMatch: the message did not contain the answer.
	NoMatch
	// Expired: the quiz had ended; it was cleared without a reply.
	Expired
	// Won: the message won; the quiz was cleared.
	Won
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "no_match"
	case Expired:
		return "expired"
	case Won:
		return "won"
	default:
		return "ignored"
	}
}

// Replier sends the winner reply.
type Replier interface {
	Reply(ctx context.Context, to *kit.Message, text string) error
}

// Slot holds at most one Active quiz.
type Slot struct {
	mu  sync.Mutex
	cur *Active

	// occupied mirrors cur != nil for the lock-free idle check.
	occupied atomic.Bool
	policy   atomic.Int32

	now func() time.Time
}

func NewSlot(p Policy) *Slot {
	s := &Slot{now: time.Now}
	s.policy.Store(int32(p))
	return s
}

// SetPolicy changes the install policy; safe to call at any time.
func (s *Slot) SetPolicy(p Policy) { s.policy.Store(int32(p)) }

func (s *Slot) Policy() Policy { return Policy(s.policy.Load()) }

// TryInstall puts a into the slot. It returns the quiz it displaced, if any.
// Under PolicyReject an unfinished quiz is kept and ErrQuizActive returned;
// a quiz past its end time never blocks an install.
func (s *Slot) TryInstall(a Active) (*Active, error) {
	if a.InstalledAt.IsZero() {
		a.InstalledAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur
	if prev != nil && s.Policy() == PolicyReject && !prev.Expired(s.now()) {
		return nil, fmt.Errorf("%w: quiz %d (item %d)", ErrQuizActive, prev.QuizID, prev.ItemID)
	}
	s.cur = &a
	s.occupied.Store(true)
	return prev, nil
}

// Current returns a copy of the installed quiz.
func (s *Slot) Current() (Active, bool) {
	if !s.occupied.Load() {
		return Active{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Active{}, false
	}
	return *s.cur, true
}

// Clear empties the slot.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
}

func (s *Slot) clearLocked() {
	s.cur = nil
	s.occupied.Store(false)
}

// Evaluate checks msg against the installed quiz.
//
// The lock is held until the reply call returns. A reply error is returned
// alongside Won; the quiz is cleared either way.
func (s *Slot) Evaluate(ctx context.Context, msg *kit.Message, r Replier) (Outcome, *Active, error) {
	if msg == nil || !s.occupied.Load() {
		return Ignored, nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cur
	if cur == nil || msg.ChannelID != cur.ChannelID {
		return Ignored, nil, nil
	}
	won := *cur
	if cur.Expired(s.now()) {
		s.clearLocked()
		return Expired, &won, nil
	}
	if !Matches(msg.Content, cur.Answer) {
		return NoMatch, nil, nil
	}

	s.clearLocked()
	var err error
	if r != nil {
		err = r.Reply(ctx, msg, ReplyText(cur.ReplyWith, msg))
	}
	return Won, &won, err
}

// ReplyText expands the {mention} placeholder with the winner's mention.
func ReplyText(tmpl string, msg *kit.Message) string {
	if msg == nil || !strings.Contains(tmpl, "{mention}") {
		return tmpl
	}
	return strings.ReplaceAll(tmpl, "{mention}", msg.AuthorMention)
}
