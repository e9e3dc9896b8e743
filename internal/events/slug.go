package events

import (
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const maxSlugLen = 80

// MakeSlug derives a URL slug from an event title.
func MakeSlug(title string) string {
	s := slug.Make(title)
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
	}
	if s == "" {
		s = "event"
	}
	return s
}

// withSuffix disambiguates a slug that is already taken.
func withSuffix(s string) string {
	return s + "-" + uuid.NewString()[:8]
}
