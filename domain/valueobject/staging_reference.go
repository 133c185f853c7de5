package valueobject

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const DefaultStagingPrefix = "secret-review/staging/"

var (
	ErrReferenceNamespace = errors.New("staging reference is outside the staging namespace")
	ErrReferenceChangeID  = errors.New("staging reference does not embed a valid change id")
)

// StagingNamespace maps change ids to staging references and back
type StagingNamespace struct {
	prefix string
}

func NewStagingNamespace(prefix string) StagingNamespace {
	if prefix == "" {
		prefix = DefaultStagingPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return StagingNamespace{prefix: prefix}
}

func (n StagingNamespace) Prefix() string {
	return n.prefix
}

func (n StagingNamespace) Reference(changeID string) string {
	return n.prefix + changeID
}

// Contains reports whether reference names a record inside the namespace
func (n StagingNamespace) Contains(reference string) bool {
	return strings.HasPrefix(reference, n.prefix) && len(reference) > len(n.prefix)
}

// ChangeID extracts the change id embedded in a staging reference.
func (n StagingNamespace) ChangeID(reference string) (string, error) {
	if !strings.HasPrefix(reference, n.prefix) {
		return "", ErrReferenceNamespace
	}
	id := strings.TrimPrefix(reference, n.prefix)
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrReferenceChangeID
	}
	return id, nil
}
