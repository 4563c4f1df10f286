package fallback

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DemoVideoURL is the placeholder clip substituted when video generation
// degrades to demo mode.
const DemoVideoURL = "https://storage.googleapis.com/gtv-videos-bucket/sample/ForBiggerJoyrides.mp4"

// DefaultSceneDuration is used when the model returns a non-positive duration.
const DefaultSceneDuration = 3

// DemoVideo returns url, or the built-in demo clip when url is blank.
func DemoVideo(url string) string {
	return SafeString(url, DemoVideoURL)
}

// SafeString returns a trimmed string or the provided fallback.
func SafeString(value interface{}, fallback string) string {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s != "" {
			return s
		}
	}
	return fallback
}

// SafeInt converts common number shapes into a positive int with a fallback.
func SafeInt(value interface{}, fallback int) int {
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case float32:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil && n > 0 {
			return n
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// SceneDuration keeps durations positive.
func SceneDuration(value interface{}) int {
	return SafeInt(value, DefaultSceneDuration)
}
