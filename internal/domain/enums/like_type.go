package enums

import "strings"

type LikeType string

const (
	LikeTypeLike  LikeType = "like"
	LikeTypeSuper LikeType = "super"
)

// ParseLikeType accepts the wire values plus the "superlike" spelling older clients send.
func ParseLikeType(raw string) (LikeType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(LikeTypeLike):
		return LikeTypeLike, true
	case string(LikeTypeSuper), "superlike", "super_like":
		return LikeTypeSuper, true
	default:
		return "", false
	}
}
