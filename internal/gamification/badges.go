package gamification

// BadgeTier ranks a badge.
type BadgeTier string

const (
	TierBronze BadgeTier = "bronze"
	TierSilver BadgeTier = "silver"
	TierGold   BadgeTier = "gold"
)

// BadgeCategory groups badges by the behaviour they reward.
type BadgeCategory string

const (
	CategoryConsistency BadgeCategory = "consistency"
	CategoryQuality     BadgeCategory = "quality"
	CategoryEngagement  BadgeCategory = "engagement"
	CategoryMilestone   BadgeCategory = "milestone"
)

// Badge is an immutable catalog entry.
type Badge struct {
	Key            string        `json:"key"`
	Tier           BadgeTier     `json:"tier"`
	Category       BadgeCategory `json:"category"`
	Requirement    int           `json:"requirement"`
	NameKey        string        `json:"name_key"`
	DescriptionKey string        `json:"description_key"`
	Icon           string        `json:"icon"`
}

func badge(key string, tier BadgeTier, category BadgeCategory, requirement int, icon string) Badge {
	return Badge{
		Key:            key,
		Tier:           tier,
		Category:       category,
		Requirement:    requirement,
		NameKey:        "badges." + key + ".name",
		DescriptionKey: "badges." + key + ".description",
		Icon:           icon,
	}
}

// Declaration order is the evaluation and output order.
var catalog = []Badge{
	badge("first_log", TierBronze, CategoryMilestone, 1, "flag"),
	badge("streak_3", TierBronze, CategoryConsistency, 3, "flame"),
	badge("streak_7", TierSilver, CategoryConsistency, 7, "flame"),
	badge("streak_30", TierGold, CategoryConsistency, 30, "flame"),
	badge("quality_1", TierBronze, CategoryQuality, 1, "star"),
	badge("quality_10", TierSilver, CategoryQuality, 10, "star"),
	badge("all_approved", TierGold, CategoryQuality, 5, "check-circle"),
	badge("self_reflector", TierBronze, CategoryEngagement, 5, "mirror"),
	badge("documenter", TierSilver, CategoryEngagement, 10, "camera"),
	badge("hours_100", TierGold, CategoryEngagement, 100, "clock"),
	badge("logs_30", TierSilver, CategoryMilestone, 30, "book"),
	badge("level_5", TierSilver, CategoryMilestone, 5, "trending-up"),
	badge("level_10", TierGold, CategoryMilestone, 10, "crown"),
}

// Catalog returns a copy of the badge catalog in declaration order.
func Catalog() []Badge {
	return append([]Badge(nil), catalog...)
}

// BadgeByKey looks up a catalog entry.
func BadgeByKey(key string) (Badge, bool) {
	for _, entry := range catalog {
		if entry.Key == key {
			return entry, true
		}
	}
	return Badge{}, false
}
