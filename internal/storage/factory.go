package storage

import (
	"fmt"

	"github.com/sayingslab/backupd/internal/config"
)

// NewRemotes builds every configured remote backend. Backends are
// independent of each other; a caller iterates over them without ever
// branching on provider identity.
func NewRemotes(cfg config.StorageConfig) ([]Backend, error) {
	remotes := make([]Backend, 0, len(cfg.Remotes))
	for _, rc := range cfg.Remotes {
		backend, err := newRemote(rc)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", rc.Name, err)
		}
		remotes = append(remotes, backend)
	}
	return remotes, nil
}

func newRemote(rc config.RemoteStore) (Backend, error) {
	if rc.Name == "" {
		return nil, fmt.Errorf("remote backend requires a name")
	}
	if rc.Bucket == "" {
		return nil, fmt.Errorf("remote backend requires a bucket")
	}
	switch rc.Provider {
	case "s3", "minio", "":
		if rc.Endpoint == "" {
			return nil, fmt.Errorf("s3 backend requires an endpoint")
		}
		return NewS3(rc)
	case "aws":
		return NewAWS(rc), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", rc.Provider)
	}
}
