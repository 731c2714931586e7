package bus

import (
	"fmt"
	"strings"
)

// Wildcard matches exactly one topic segment.
const Wildcard = "*"

// ResponseTopic returns the private topic a request waits on.
func ResponseTopic(messageID string) string {
	return "response." + messageID
}

// Match reports whether topic matches pattern under the segment wildcard rule.
func Match(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	return matchSegments(strings.Split(pattern, "."), topic)
}

func matchSegments(segments []string, topic string) bool {
	parts := strings.Split(topic, ".")
	if len(parts) != len(segments) {
		return false
	}
	for i, seg := range segments {
		if seg != Wildcard && seg != parts[i] {
			return false
		}
	}
	return true
}

// IsPattern reports whether p contains a wildcard segment.
func IsPattern(p string) bool {
	for _, seg := range strings.Split(p, ".") {
		if seg == Wildcard {
			return true
		}
	}
	return false
}

// ValidatePattern rejects empty patterns and empty segments.
func ValidatePattern(p string) error {
	if p == "" {
		return fmt.Errorf("empty topic pattern")
	}
	for _, seg := range strings.Split(p, ".") {
		if seg == "" {
			return fmt.Errorf("topic pattern %q has an empty segment", p)
		}
	}
	return nil
}
