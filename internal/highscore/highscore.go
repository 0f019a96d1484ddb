// Package highscore keeps the ranked list of best final scores.
//
// The Service is an explicit object owned by the driver and handed to whoever
// needs it; storage is injected through Store.
package highscore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCapacity = 10
	DefaultMinScore = 100
	MaxNameLength   = 24
)

var (
	ErrEmptyName   = errors.New("name is required")
	ErrNameTooLong = errors.New("name is too long")
	ErrScoreTooLow = errors.New("score does not qualify")
	ErrNameTaken   = errors.New("name already on the list")
)

// Entry is one ranked result
type Entry struct {
	Name       string    `json:"name"`
	Score      int       `json:"score"`
	AchievedAt time.Time `json:"achievedAt"`
	Rank       int       `json:"rank"`
}

// Options configures a Service.
type Options struct {
	Capacity int // list length, DefaultCapacity when <= 0
	MinScore int // lowest qualifying score
	Now      func() time.Time
}

// DefaultOptions returns a top-10 list with a 100 point minimum.
func DefaultOptions() Options {
	return Options{
		Capacity: DefaultCapacity,
		MinScore: DefaultMinScore,
	}
}

// Service ranks scores by score descending, earlier achievement first on ties.
// Names are unique case-insensitively.
type Service struct {
	mu    sync.Mutex
	store Store
	opts  Options
}

// NewService creates a service over the given store.
func NewService(store Store, opts Options) *Service {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, opts: opts}
}

// Capacity returns the maximum list length.
func (s *Service) Capacity() int { return s.opts.Capacity }

// MinScore returns the lowest qualifying score.
func (s *Service) MinScore() int { return s.opts.MinScore }

// Qualifies reports whether score would enter the list.
func (s *Service) Qualifies(ctx context.Context, score int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return s.qualifies(entries, score), nil
}

func (s *Service) qualifies(entries []Entry, score int) bool {
	if score < s.opts.MinScore {
		return false
	}
	if len(entries) < s.opts.Capacity {
		return true
	}
	return score > entries[len(entries)-1].Score
}

// Submit records a final score and returns its 1-based rank.
func (s *Service) Submit(ctx context.Context, name string, score int) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}
	if len([]rune(name)) > MaxNameLength {
		return 0, fmt.Errorf("%w: max %d characters", ErrNameTooLong, MaxNameLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return 0, fmt.Errorf("%w: %s", ErrNameTaken, e.Name)
		}
	}
	if !s.qualifies(entries, score) {
		return 0, fmt.Errorf("%w: %d", ErrScoreTooLow, score)
	}

	entry := Entry{Name: name, Score: score, AchievedAt: s.opts.Now()}
	entries = append(entries, entry)
	rankEntries(entries)
	if len(entries) > s.opts.Capacity {
		entries = entries[:s.opts.Capacity]
	}

	if err := s.store.Save(ctx, entries); err != nil {
		return 0, fmt.Errorf("save high scores: %w", err)
	}

	for _, e := range entries {
		if e.Name == entry.Name {
			return e.Rank, nil
		}
	}
	return 0, nil
}

// Top returns the ranked list.
func (s *Service) Top(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Best returns the highest recorded score, or 0 for an empty list.
func (s *Service) Best(ctx context.Context) (int, error) {
	entries, err := s.Top(ctx)
	if err != nil || len(entries) == 0 {
		return 0, err
	}
	return entries[0].Score, nil
}

// load reads and normalizes the stored list
func (s *Service) load(ctx context.Context) ([]Entry, error) {
	entries, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load high scores: %w", err)
	}
	rankEntries(entries)
	if len(entries) > s.opts.Capacity {
		entries = entries[:s.opts.Capacity]
	}
	return entries, nil
}

// rankEntries sorts in place and assigns 1-based ranks.
func rankEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].AchievedAt.Before(entries[j].AchievedAt)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
