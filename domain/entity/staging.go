package entity

import (
	"fmt"
	"time"
)

// StagingPayload is the value-bearing body of a staging record.
// String and GoString never print values so the payload is safe in %v and %#v.
type StagingPayload struct {
	ProposedValues map[string]string `json:"proposedValues"`
	BaselineValues map[string]string `json:"baselineValues"`
	Project        string            `json:"project"`
	Env            string            `json:"env"`
}

func (p StagingPayload) String() string {
	return fmt.Sprintf("StagingPayload{project=%s env=%s proposed=%d baseline=%d}",
		p.Project, p.Env, len(p.ProposedValues), len(p.BaselineValues))
}

func (p StagingPayload) GoString() string {
	return p.String()
}

// StagingEntry is one item of the staging listing used by the cleanup sweep
type StagingEntry struct {
	Reference string
	ChangeID  string
	CreatedAt time.Time
}

// IsOlderThan reports whether the entry was created more than retention before now.
// Entries without a creation timestamp are treated as expired.
func (e StagingEntry) IsOlderThan(retention time.Duration, now time.Time) bool {
	if e.CreatedAt.IsZero() {
		return true
	}
	return now.Sub(e.CreatedAt) > retention
}
