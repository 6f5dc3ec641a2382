// Package file provides file-based persistence for processes and instances,
// meant for development and single-node deployments.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/procwise/procwise/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system. Each
// process and instance is one JSON document under the root directory.
type Persistence struct {
	root         string
	processRepo  *ProcessRepository
	instanceRepo *InstanceRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A file:// prefix is stripped so database URLs work unchanged.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		processRepo:  NewProcessRepository(cleanRoot),
		instanceRepo: NewInstanceRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) ProcessRepository() persistence.ProcessRepository {
	return fp.processRepo
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}
