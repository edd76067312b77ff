// Package state persists the latest chain snapshot per blockchain.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// ErrNotFound is returned by Get when no snapshot exists for a blockchain
var ErrNotFound = errors.New("state not found")

// Store is a key-value store of chain snapshots keyed by blockchain.
// Put is a full overwrite; concurrent writers resolve by last write.
type Store interface {
	Get(ctx context.Context, chain types.Blockchain) (model.ChainState, error)
	Put(ctx context.Context, chain types.Blockchain, s model.ChainState) error
}

// record is the stored document: the snapshot plus write metadata
type record struct {
	model.ChainState
	UpdatedAt time.Time `json:"updated_at"`
}

func newRecord(s model.ChainState) record {
	return record{ChainState: s, UpdatedAt: time.Now().UTC()}
}
