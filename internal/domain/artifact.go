package domain

import "time"

// Artifact is an immutable generated document plus its content type. It is
// written once under a cache key and only removed by store TTL eviction.
type Artifact struct {
	Body        []byte
	ContentType string
	GeneratedAt time.Time
}

func (a Artifact) Clone() Artifact {
	clone := a
	clone.Body = append([]byte(nil), a.Body...)
	return clone
}
