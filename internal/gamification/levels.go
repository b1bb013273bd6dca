package gamification

import "math"

// Level is one step of the progression table. MaxXP is exclusive.
type Level struct {
	Number int    `json:"level"`
	Name   string `json:"name"`
	MinXP  int    `json:"min_xp"`
	MaxXP  int    `json:"max_xp"`
}

// Unbounded reports whether the level has no upper edge.
func (l Level) Unbounded() bool {
	return l.MaxXP == math.MaxInt
}

// Contains reports whether totalXP falls inside [MinXP, MaxXP).
func (l Level) Contains(totalXP int) bool {
	return l.MinXP <= totalXP && totalXP < l.MaxXP
}

var levelTable = []Level{
	{Number: 1, Name: "newcomer", MinXP: 0, MaxXP: 100},
	{Number: 2, Name: "apprentice", MinXP: 100, MaxXP: 250},
	{Number: 3, Name: "explorer", MinXP: 250, MaxXP: 450},
	{Number: 4, Name: "practitioner", MinXP: 450, MaxXP: 700},
	{Number: 5, Name: "contributor", MinXP: 700, MaxXP: 1000},
	{Number: 6, Name: "specialist", MinXP: 1000, MaxXP: 1400},
	{Number: 7, Name: "professional", MinXP: 1400, MaxXP: 1900},
	{Number: 8, Name: "expert", MinXP: 1900, MaxXP: 2500},
	{Number: 9, Name: "master", MinXP: 2500, MaxXP: 3200},
	{Number: 10, Name: "legend", MinXP: 3200, MaxXP: math.MaxInt},
}

// MaxLevel is the highest reachable level number.
const MaxLevel = 10

// Levels returns a copy of the level table.
func Levels() []Level {
	return append([]Level(nil), levelTable...)
}

// LevelFor returns the level whose range contains totalXP.
// Negative XP is treated as zero.
func LevelFor(totalXP int) Level {
	if totalXP < 0 {
		totalXP = 0
	}
	for _, level := range levelTable {
		if level.Contains(totalXP) {
			return level
		}
	}
	return levelTable[len(levelTable)-1]
}

// LevelProgress describes how far a student is through the current level.
type LevelProgress struct {
	Level       Level `json:"level"`
	XPIntoLevel int   `json:"xp_into_level"`
	XPToNext    int   `json:"xp_to_next"`
	Percent     int   `json:"percent"`
}

// Progress computes the display progress for totalXP.
func Progress(totalXP int) LevelProgress {
	if totalXP < 0 {
		totalXP = 0
	}
	level := LevelFor(totalXP)
	progress := LevelProgress{
		Level:       level,
		XPIntoLevel: totalXP - level.MinXP,
	}
	if level.Unbounded() {
		progress.Percent = 100
		return progress
	}

	span := level.MaxXP - level.MinXP
	progress.XPToNext = level.MaxXP - totalXP
	progress.Percent = progress.XPIntoLevel * 100 / span
	return progress
}
