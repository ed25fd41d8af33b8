package domain

import (
	"math"
	"strings"
)

// hazardKeywords are scene words counted toward each hazard type when the
// classifier answers in prose instead of structured output.
var hazardKeywords = map[HazardType][]string{
	HazardTsunami: {
		"tsunami", "tidal wave", "sea wave", "ocean wave",
		"flooding", "inundation", "massive wave", "wall of water",
	},
	HazardCyclone: {
		"cyclone", "hurricane", "storm", "typhoon", "wind",
		"rain", "clouds", "weather", "tropical storm", "severe weather",
	},
	HazardHighTide: {
		"high tide", "tide", "coastal flooding", "sea level",
		"shoreline", "beach erosion", "king tide", "storm surge",
	},
}

var oceanKeywords = []string{
	"ocean", "sea", "water", "wave", "beach", "coast", "shore",
	"marine", "maritime", "coastal", "bay", "harbor", "surf",
	"flooding", "storm", "wind", "rain", "weather",
}

const maxSceneDescription = 200

// ParseAssessmentText derives an assessment from a free-text classifier answer.
// Ocean relevance is any ocean keyword; the hazard type is the one with the
// most keyword hits (ties go to the earlier type in HazardTypes); confidence
// grows by 0.2 per hit up to 1.0 and is zero when no hazard is detected.
func ParseAssessmentText(text string) ImageAssessment {
	lower := strings.ToLower(text)

	oceanRelated := false
	for _, k := range oceanKeywords {
		if strings.Contains(lower, k) {
			oceanRelated = true
			break
		}
	}

	var best HazardType
	bestHits := 0
	for _, h := range HazardTypes {
		hits := 0
		for _, k := range hazardKeywords[h] {
			if strings.Contains(lower, k) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = h, hits
		}
	}

	a := ImageAssessment{
		OceanRelated:     oceanRelated,
		HazardDetected:   bestHits > 0 && oceanRelated,
		SceneDescription: truncate(text, maxSceneDescription),
	}
	if a.HazardDetected {
		a.DetectedHazardType = best
		a.Confidence = min(float64(bestHits)/5.0, 1.0)
	}
	return a
}

// NormalizeAssessment clamps confidence into [0,1] and drops a detected hazard
// type that is unknown or not backed by a detection.
func NormalizeAssessment(a ImageAssessment) ImageAssessment {
	if math.IsNaN(a.Confidence) {
		a.Confidence = 0
	}
	a.Confidence = max(0, min(a.Confidence, 1))
	a.DetectedHazardType = ParseHazardType(string(a.DetectedHazardType))
	if !a.HazardDetected {
		a.DetectedHazardType = ""
	}
	return a
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
