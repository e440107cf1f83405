package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultPrefix is used when the caller supplies an empty prefix.
	DefaultPrefix = "id"
	// QueuePrefix tags records created for the pending queue.
	QueuePrefix = "offline"

	recordPrefix     = "pesaje"
	containerPrefix  = "bin"
	vesselPrefixStem = "pesaje-emb"
)

// Generator issues locally scoped identifiers.
type Generator interface {
	NewID(prefix string) (string, error)
}

type uuidGenerator struct{}

// NewUUIDGenerator constructs a Generator backed by UUIDv7 values. A UUIDv7 carries a
// millisecond timestamp followed by a per-process monotonic sequence and random bits, so
// calls within the same millisecond never collide.
func NewUUIDGenerator() Generator {
	return &uuidGenerator{}
}

func (g *uuidGenerator) NewID(prefix string) (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("ids: generate: %w", err)
	}
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = DefaultPrefix
	}
	return normalized + "-" + value.String(), nil
}

// RecordPrefix returns the prefix used for draft identifiers of the given vessel.
func RecordPrefix(vesselID *int64) string {
	if vesselID == nil {
		return recordPrefix
	}
	return fmt.Sprintf("%s-%d", vesselPrefixStem, *vesselID)
}

// ContainerPrefix returns the prefix used for container identifiers.
func ContainerPrefix(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return containerPrefix
	}
	return containerPrefix + "-" + strings.Join(strings.Fields(trimmed), "_")
}
