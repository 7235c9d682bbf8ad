package main

import "fmt"

// Tag classifies which faction owns a tracked object
type Tag uint8

const (
	TagNone Tag = iota
	TagPlayer
	TagEnemy
	TagAlly
)

var tagNames = [...]string{
	TagNone:   "none",
	TagPlayer: "player",
	TagEnemy:  "enemy",
	TagAlly:   "ally",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// MarshalText encodes the tag by name for JSON payloads
func (t Tag) MarshalText() ([]byte, error) {
	if int(t) >= len(tagNames) {
		return nil, fmt.Errorf("unknown tag %d", uint8(t))
	}
	return []byte(tagNames[t]), nil
}

// UnmarshalText accepts the names produced by MarshalText
func (t *Tag) UnmarshalText(b []byte) error {
	for i, name := range tagNames {
		if name == string(b) {
			*t = Tag(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tag %q", string(b))
}

// Friendly reports whether objects with this tag damage enemies
func (t Tag) Friendly() bool {
	return t == TagPlayer || t == TagAlly
}
