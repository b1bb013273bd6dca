package gamification

import (
	"strconv"

	"github.com/noah-isme/internlog-api/internal/lifecycle"
)

// BadgeIntents builds one notification intent per newly earned badge.
func BadgeIntents(studentID uint, keys []string) []lifecycle.NotificationIntent {
	intents := make([]lifecycle.NotificationIntent, 0, len(keys))
	for _, key := range keys {
		entry, ok := BadgeByKey(key)
		if !ok {
			continue
		}
		intents = append(intents, lifecycle.NotificationIntent{
			UserID: strconv.FormatUint(uint64(studentID), 10),
			Type:   "badge.earned",
			Payload: map[string]interface{}{
				"badge":    entry.Key,
				"tier":     string(entry.Tier),
				"category": string(entry.Category),
				"name_key": entry.NameKey,
			},
		})
	}
	return intents
}

// LevelUpIntent returns an intent when the level increased.
func LevelUpIntent(studentID uint, previousLevel, currentLevel int) (lifecycle.NotificationIntent, bool) {
	if currentLevel <= previousLevel || currentLevel < 1 || currentLevel > MaxLevel {
		return lifecycle.NotificationIntent{}, false
	}
	level := Levels()[currentLevel-1]
	return lifecycle.NotificationIntent{
		UserID: strconv.FormatUint(uint64(studentID), 10),
		Type:   "level.up",
		Payload: map[string]interface{}{
			"previous_level": previousLevel,
			"level":          level.Number,
			"name":           level.Name,
		},
	}, true
}
