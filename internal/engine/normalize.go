package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// normalizeCategory trims and lowercases; empty becomes "general".
func normalizeCategory(category string) string {
	v := strings.ToLower(strings.TrimSpace(category))
	if v == "" {
		return "general"
	}
	return v
}

// normalizeTags trims each tag, drops empties, and deduplicates preserving
// first occurrence and insertion order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// normalizeContent trims; callers must reject the result if empty.
func normalizeContent(content string) string {
	return strings.TrimSpace(content)
}

// normalizeProject trims; empty is left for the caller to substitute the
// store's default project.
func normalizeProject(project string) string {
	return strings.TrimSpace(project)
}

// newID generates a version-4 UUID in its textual form.
func newID() string {
	return uuid.NewString()
}

// hashContent is the fingerprint used for optional create-time dedup: a
// sha256 digest of the trimmed, lowercased, whitespace-collapsed content.
// Two memories with identical content but different metadata hash equal —
// documented behavior, not a bug.
func hashContent(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
