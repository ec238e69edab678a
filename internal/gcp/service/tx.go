package service

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
)

// StoreTx provides a transactional boundary for multi-step GCP mutations of
// one image. Implementations may wrap a database transaction or, in memory,
// a per-image lock.
type StoreTx interface {
	RunInTx(ctx context.Context, imageID id.ImageID, fn func(ctx context.Context) error) error
}

const numImageShards = 128

const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes mutations per image using sharded mutexes keyed by a
// hash of the image ID.
type ShardedTx struct {
	shards  [numImageShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx() *ShardedTx {
	return &ShardedTx{timeout: defaultTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, imageID id.ImageID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := shardFor(imageID)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func shardFor(imageID id.ImageID) uint64 {
	return xxhash.Sum64String(imageID.String()) % numImageShards
}
