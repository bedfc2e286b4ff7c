// Package iomanager stores and loads asset partitions in object storage.
// Each partition is one zstd-encoded object under
// <prefix>/<asset path>/<escaped partition key>; unpartitioned assets use __all__.
package iomanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
	"github.com/animus-labs/animus-assets/internal/platform/objectstore"
)

const (
	// UnpartitionedKey names the single object of an unpartitioned asset.
	UnpartitionedKey = "__all__"

	defaultConcurrency = 8
	contentType        = "application/octet-stream"
)

// Observer receives the encoded size of every object written or read.
type Observer interface {
	ObservePartitionBytes(op string, n int)
}

// Partition is one loaded partition. Key is empty for unpartitioned assets.
type Partition struct {
	Key  string
	Data []byte
}

type PartitionedIO struct {
	Store       objectstore.Store
	Bucket      string
	Prefix      string
	Concurrency int
	// MaxPartitions caps the partitions one load may read. Zero means no cap.
	MaxPartitions int
	Observer      Observer
}

func New(store objectstore.Store, cfg objectstore.Config) (*PartitionedIO, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	return &PartitionedIO{
		Store:  store,
		Bucket: strings.TrimSpace(cfg.Bucket),
		Prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}, nil
}

// ObjectKey returns the object key for a partition of an asset. An empty
// partition key addresses the unpartitioned object. The partition key is
// path-escaped into a single segment, so "/" in a key never adds a level.
func (p *PartitionedIO) ObjectKey(key assets.AssetKey, partitionKey string) string {
	if partitionKey == "" {
		partitionKey = UnpartitionedKey
	}
	elems := make([]string, 0, len(key.Path())+1)
	if p.Prefix != "" {
		elems = append(elems, p.Prefix)
	}
	elems = append(elems, key.Path()...)
	return path.Join(elems...) + "/" + url.PathEscape(partitionKey)
}

// ValidatePartitionKey rejects keys that would not map to their own object.
func ValidatePartitionKey(partitionKey string) error {
	switch partitionKey {
	case ".", "..":
		return fmt.Errorf("partition key %q: %w", partitionKey, ErrInvalidPartitionKey)
	case UnpartitionedKey:
		return fmt.Errorf("partition key %q is reserved: %w", partitionKey, ErrInvalidPartitionKey)
	}
	return nil
}

// HandleOutput writes the body of one partition, replacing any previous
// version.
func (p *PartitionedIO) HandleOutput(ctx context.Context, key assets.AssetKey, partitionKey string, body []byte) error {
	if err := p.checkPartition(key, partitionKey); err != nil {
		return err
	}
	encoded, err := encode(body)
	if err != nil {
		return err
	}
	objectKey := p.ObjectKey(key, partitionKey)
	err = p.Store.Put(ctx, p.Bucket, objectKey, bytes.NewReader(encoded), int64(len(encoded)), objectstore.PutOptions{
		ContentType:     contentType,
		ContentEncoding: encodingZstd,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", objectKey, err)
	}
	p.observe("put", len(encoded))
	return nil
}

// LoadInput loads the partitions of an upstream asset covered by subset, in
// key order. def is the upstream partitions definition and may be nil.
func (p *PartitionedIO) LoadInput(ctx context.Context, key assets.AssetKey, def partitions.Definition, subset mapping.Subset) ([]Partition, error) {
	if err := p.check(key); err != nil {
		return nil, err
	}
	switch subset.Kind {
	case mapping.SubsetNone:
		return []Partition{}, nil
	case mapping.SubsetUnpartitioned:
		return p.loadKeys(ctx, key, []string{""})
	case mapping.SubsetAll:
		if def != nil {
			return nil, fmt.Errorf("load %s: %w", key, ErrUnboundedSubset)
		}
		return p.loadKeys(ctx, key, []string{""})
	case mapping.SubsetRange:
		if def == nil {
			return nil, fmt.Errorf("load %s: range subset %s for an unpartitioned asset: %w", key, subset.Range, partitions.ErrInvalidRange)
		}
		n, err := subset.Range.Len(def)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if err := p.checkCount(key, n); err != nil {
			return nil, err
		}
		keys, err := subset.Range.KeySlice(def)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		return p.loadKeys(ctx, key, keys)
	default:
		return nil, fmt.Errorf("load %s: unknown subset kind %d", key, subset.Kind)
	}
}

// LoadAll loads every partition of def that exists as of asOf.
func (p *PartitionedIO) LoadAll(ctx context.Context, key assets.AssetKey, def partitions.Definition, asOf time.Time) ([]Partition, error) {
	if err := p.check(key); err != nil {
		return nil, err
	}
	if def == nil {
		return p.loadKeys(ctx, key, []string{""})
	}
	if err := p.checkCount(key, def.CountAsOf(asOf)); err != nil {
		return nil, err
	}
	return p.loadKeys(ctx, key, def.KeysAsOf(asOf))
}

// Exists reports whether a partition has been written.
func (p *PartitionedIO) Exists(ctx context.Context, key assets.AssetKey, partitionKey string) (bool, error) {
	if err := p.checkPartition(key, partitionKey); err != nil {
		return false, err
	}
	_, err := p.Store.Stat(ctx, p.Bucket, p.ObjectKey(key, partitionKey))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, objectstore.ErrObjectNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (p *PartitionedIO) Delete(ctx context.Context, key assets.AssetKey, partitionKey string) error {
	if err := p.checkPartition(key, partitionKey); err != nil {
		return err
	}
	objectKey := p.ObjectKey(key, partitionKey)
	if err := p.Store.Delete(ctx, p.Bucket, objectKey); err != nil {
		return fmt.Errorf("delete %s: %w", objectKey, err)
	}
	return nil
}

func (p *PartitionedIO) loadKeys(ctx context.Context, key assets.AssetKey, keys []string) ([]Partition, error) {
	out := make([]Partition, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, partitionKey := range keys {
		g.Go(func() error {
			data, err := p.load(gctx, key, partitionKey)
			if err != nil {
				return err
			}
			out[i] = Partition{Key: partitionKey, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PartitionedIO) load(ctx context.Context, key assets.AssetKey, partitionKey string) ([]byte, error) {
	if err := ValidatePartitionKey(partitionKey); err != nil {
		return nil, err
	}
	objectKey := p.ObjectKey(key, partitionKey)
	body, info, err := p.Store.Get(ctx, p.Bucket, objectKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return nil, fmt.Errorf("%s partition %q: %w", key, partitionKey, ErrPartitionMissing)
		}
		return nil, fmt.Errorf("get %s: %w", objectKey, err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", objectKey, err)
	}
	p.observe("get", len(raw))
	data, err := decode(raw, info.ContentEncoding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", objectKey, err)
	}
	return data, nil
}

func (p *PartitionedIO) check(key assets.AssetKey) error {
	if p == nil || p.Store == nil {
		return errors.New("partitioned io not initialized")
	}
	return key.Validate()
}

func (p *PartitionedIO) checkPartition(key assets.AssetKey, partitionKey string) error {
	if err := p.check(key); err != nil {
		return err
	}
	return ValidatePartitionKey(partitionKey)
}

func (p *PartitionedIO) checkCount(key assets.AssetKey, n int) error {
	if p.MaxPartitions > 0 && n > p.MaxPartitions {
		return fmt.Errorf("load %s: %d partitions, limit %d: %w", key, n, p.MaxPartitions, ErrTooManyPartitions)
	}
	return nil
}

func (p *PartitionedIO) concurrency() int {
	if p.Concurrency > 0 {
		return p.Concurrency
	}
	return defaultConcurrency
}

func (p *PartitionedIO) observe(op string, n int) {
	if p.Observer != nil {
		p.Observer.ObservePartitionBytes(op, n)
	}
}
