package router

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/namespace"
)

// Subject is one entry of the subject mapping configuration.
type Subject struct {
	// Primary is the canonical subject name.
	Primary string `json:"primary"`

	// Aliases are alternative names accepted in explicit lookups.
	Aliases []string `json:"aliases,omitempty"`

	// Namespace overrides the partition key derived from Primary.
	Namespace string `json:"namespace,omitempty"`

	// Keywords drive auto-routing by substring containment.
	Keywords []string `json:"keywords"`
}

// PartitionKey returns the subject's namespace segment: the explicit override
// if configured, otherwise the normalized primary name.
func (s *Subject) PartitionKey() string {
	if s.Namespace != "" {
		return s.Namespace
	}
	return namespace.Normalize(s.Primary)
}

// Mapping is the ordered set of subject definitions. It is read-only for the
// duration of a run.
type Mapping struct {
	Subjects []Subject `json:"subjects"`
}

// LoadMapping reads a subject mapping from a JSON file.
//
// A missing file is not an error: it returns a nil mapping, which degrades
// auto-routing to "no match, default partition" without failing the run.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading subject mapping %s: %w", path, err)
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing subject mapping %s: %w", path, err)
	}
	return &m, nil
}
