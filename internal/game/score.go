package game

import "time"

const (
	LinesPerLevel        = 10
	InitialFallInterval  = 500 * time.Millisecond
	FallIntervalStep     = 50 * time.Millisecond
	MinFallInterval      = 50 * time.Millisecond
	HardDropPointsPerRow = 2
)

// lineClearPoints is indexed by the number of rows cleared in one lock.
var lineClearPoints = [...]int{0, 100, 300, 500, 800}

// ScoreTracker holds score, total lines, and the level and fall speed derived
// from them.
type ScoreTracker struct {
	score        int
	lines        int
	level        int
	fallInterval time.Duration
}

// NewScoreTracker returns a tracker at level 1.
func NewScoreTracker() ScoreTracker {
	var s ScoreTracker
	s.Reset()
	return s
}

// Reset returns the tracker to its starting values.
func (s *ScoreTracker) Reset() {
	s.score = 0
	s.lines = 0
	s.level = 1
	s.fallInterval = InitialFallInterval
}

// Apply credits one lock that cleared n rows and returns the points awarded.
// Points use the level from before this lock. Level and interval are
// recomputed only when n > 0.
func (s *ScoreTracker) Apply(n int) int {
	if n <= 0 {
		return 0
	}

	points := LineClearPoints(n) * s.level
	s.score += points
	s.lines += n
	s.level = LevelForLines(s.lines)
	s.fallInterval = FallIntervalForLevel(s.level)
	return points
}

// AddDropBonus credits the per-row hard drop bonus.
func (s *ScoreTracker) AddDropBonus(rows int) int {
	if rows <= 0 {
		return 0
	}
	points := rows * HardDropPointsPerRow
	s.score += points
	return points
}

func (s *ScoreTracker) Score() int                  { return s.score }
func (s *ScoreTracker) Lines() int                  { return s.lines }
func (s *ScoreTracker) Level() int                  { return s.level }
func (s *ScoreTracker) FallInterval() time.Duration { return s.fallInterval }

// LineClearPoints returns the base (level 1) award for clearing n rows at
// once. Counts above four are clamped to the four-row award.
func LineClearPoints(n int) int {
	if n <= 0 {
		return 0
	}
	if n >= len(lineClearPoints) {
		n = len(lineClearPoints) - 1
	}
	return lineClearPoints[n]
}

// LevelForLines returns floor(lines/10) + 1.
func LevelForLines(lines int) int {
	return lines/LinesPerLevel + 1
}

// FallIntervalForLevel returns max(50ms, 500ms - (level-1)*50ms).
func FallIntervalForLevel(level int) time.Duration {
	d := InitialFallInterval - time.Duration(level-1)*FallIntervalStep
	if d < MinFallInterval {
		return MinFallInterval
	}
	return d
}
