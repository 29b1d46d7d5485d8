package status

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/wire"
)

// Repository stores the readout.
type Repository interface {
	Save(ctx context.Context, state fall.State) error
}

// FileRepository keeps the readout in a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the readout file.
	path string
	// mu serializes writers.
	mu sync.Mutex
}

// ErrNotFound is returned when the readout file does not exist yet.
var ErrNotFound = errors.New("status readout not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the readout file path.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the readout from disk.
func (r *FileRepository) Load(_ context.Context) (fall.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fall.State{}, ErrNotFound
		}

		return fall.State{}, fmt.Errorf("read status file: %w", err)
	}

	var message structpb.Struct
	if err = protojson.Unmarshal(contents, &message); err != nil {
		return fall.State{}, fmt.Errorf("decode status file: %w", err)
	}

	return wire.StateFromStatus(&message)
}

// Save replaces the readout with state.
// The file is written next to the target and renamed over it so readers never
// see a partial document.
func (r *FileRepository) Save(_ context.Context, state fall.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(wire.StatusFromState(state))
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}

	return nil
}

// Follow saves every state received from updates until the channel closes or
// ctx is done. Write failures are logged and do not stop the loop.
func Follow(ctx context.Context, repo Repository, updates <-chan fall.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}

			if err := repo.Save(ctx, state); err != nil {
				logger.WarnKV(ctx, "Status readout not written", "error", err)
			}
		}
	}
}
