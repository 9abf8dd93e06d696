package models

// Loyalty tiers ordered from lowest to highest.
const (
	TierGlowGetter       = "Glow Getter"
	TierBeautyEnthusiast = "Beauty Enthusiast"
	TierSkincareGuru     = "Skincare Guru"
	TierGlowIcon         = "Glow Icon"
)

type tierThreshold struct {
	name   string
	points int
}

var tierThresholds = []tierThreshold{
	{TierGlowIcon, 2000},
	{TierSkincareGuru, 1000},
	{TierBeautyEnthusiast, 500},
	{TierGlowGetter, 0},
}

// TierForPoints maps a cumulative points total to its tier.
func TierForPoints(points int) string {
	for _, t := range tierThresholds {
		if points >= t.points {
			return t.name
		}
	}
	return TierGlowGetter
}

// TierRank returns the position of a tier, 0 being the entry tier.
// Unknown or empty names rank as the entry tier.
func TierRank(name string) int {
	for i, t := range tierThresholds {
		if t.name == name {
			return len(tierThresholds) - 1 - i
		}
	}
	return 0
}
