package iomanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
	"github.com/animus-labs/animus-assets/internal/platform/objectstore"
)

const orders assets.AssetKey = "warehouse/orders"

type memoryObject struct {
	data []byte
	opts objectstore.PutOptions
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	gets    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]memoryObject{}}
}

func (s *memoryStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts objectstore.PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = memoryObject{data: data, opts: opts}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	info, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return nil, objectstore.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	return io.NopCloser(bytes.NewReader(s.objects[bucket+"/"+key].data)), info, nil
}

func (s *memoryStore) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return objectstore.ObjectInfo{}, objectstore.ErrObjectNotFound
	}
	return objectstore.ObjectInfo{
		Key:             key,
		Size:            int64(len(obj.data)),
		ContentType:     obj.opts.ContentType,
		ContentEncoding: obj.opts.ContentEncoding,
	}, nil
}

func (s *memoryStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	return nil
}

type byteCounter struct {
	mu  sync.Mutex
	ops map[string]int
}

func (c *byteCounter) ObservePartitionBytes(op string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[op] += n
}

func newIO(t *testing.T) (*PartitionedIO, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	pio, err := New(store, objectstore.Config{Bucket: "assets", Prefix: "/partitions/"})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	return pio, store
}

func mustDaily(t *testing.T) partitions.Definition {
	t.Helper()
	def, err := partitions.NewDaily("2020-01-01")
	if err != nil {
		t.Fatalf("NewDaily err=%v", err)
	}
	return def
}

func TestObjectKey(t *testing.T) {
	pio, _ := newIO(t)
	if got := pio.ObjectKey(orders, "2020-01-01"); got != "partitions/warehouse/orders/2020-01-01" {
		t.Fatalf("ObjectKey=%q", got)
	}
	if got := pio.ObjectKey("countries", ""); got != "partitions/countries/__all__" {
		t.Fatalf("ObjectKey unpartitioned=%q", got)
	}
	pio.Prefix = ""
	if got := pio.ObjectKey("countries", "us"); got != "countries/us" {
		t.Fatalf("ObjectKey without prefix=%q", got)
	}
}

func TestObjectKeyEscapesPartitionKey(t *testing.T) {
	pio, store := newIO(t)
	ctx := context.Background()
	cases := []struct {
		partition string
		want      string
	}{
		{partition: "2021/05/15", want: "partitions/events/2021%2F05%2F15"},
		{partition: "a/../b", want: "partitions/events/a%2F..%2Fb"},
		{partition: "2021-05-15-00:00", want: "partitions/events/2021-05-15-00:00"},
		{partition: "us east", want: "partitions/events/us%20east"},
	}
	for _, tc := range cases {
		if got := pio.ObjectKey("events", tc.partition); got != tc.want {
			t.Fatalf("ObjectKey(%q)=%q, want %q", tc.partition, got, tc.want)
		}
		if err := pio.HandleOutput(ctx, "events", tc.partition, []byte(tc.partition)); err != nil {
			t.Fatalf("HandleOutput(%q) err=%v", tc.partition, err)
		}
		if _, ok := store.objects["assets/"+tc.want]; !ok {
			t.Fatalf("object %q not written", tc.want)
		}
	}
	if _, ok := store.objects["assets/partitions/events/b"]; ok {
		t.Fatalf("a/../b collapsed onto b")
	}
}

func TestInvalidPartitionKeys(t *testing.T) {
	pio, _ := newIO(t)
	ctx := context.Background()
	for _, partition := range []string{".", "..", UnpartitionedKey} {
		if err := pio.HandleOutput(ctx, "events", partition, []byte("x")); !errors.Is(err, ErrInvalidPartitionKey) {
			t.Fatalf("HandleOutput(%q) expected ErrInvalidPartitionKey, got %v", partition, err)
		}
		if _, err := pio.Exists(ctx, "events", partition); !errors.Is(err, ErrInvalidPartitionKey) {
			t.Fatalf("Exists(%q) expected ErrInvalidPartitionKey, got %v", partition, err)
		}
		if err := pio.Delete(ctx, "events", partition); !errors.Is(err, ErrInvalidPartitionKey) {
			t.Fatalf("Delete(%q) expected ErrInvalidPartitionKey, got %v", partition, err)
		}
	}
	def, err := partitions.NewStatic([]string{"..", "a"})
	if err != nil {
		t.Fatalf("NewStatic err=%v", err)
	}
	if _, err := pio.LoadInput(ctx, "events", def, mapping.RangeSubset(partitions.KeyRange{Start: "..", End: "a"})); !errors.Is(err, ErrInvalidPartitionKey) {
		t.Fatalf("LoadInput expected ErrInvalidPartitionKey, got %v", err)
	}
}

func TestLoadsRespectMaxPartitions(t *testing.T) {
	pio, store := newIO(t)
	pio.MaxPartitions = 3
	ctx := context.Background()
	def := mustDaily(t)
	far, err := partitions.NewKeyRange(def, "2020-01-01", "9999-12-31")
	if err != nil {
		t.Fatalf("NewKeyRange err=%v", err)
	}
	if _, err := pio.LoadInput(ctx, "events", def, mapping.RangeSubset(far)); !errors.Is(err, ErrTooManyPartitions) {
		t.Fatalf("expected ErrTooManyPartitions, got %v", err)
	}
	if _, err := pio.LoadAll(ctx, "events", def, time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC)); !errors.Is(err, ErrTooManyPartitions) {
		t.Fatalf("LoadAll expected ErrTooManyPartitions, got %v", err)
	}
	if store.gets != 0 {
		t.Fatalf("gets=%d before the limit check", store.gets)
	}
	for _, key := range []string{"2020-01-01", "2020-01-02", "2020-01-03"} {
		if err := pio.HandleOutput(ctx, "events", key, []byte(key)); err != nil {
			t.Fatalf("HandleOutput err=%v", err)
		}
	}
	if got, err := pio.LoadAll(ctx, "events", def, time.Date(2020, 1, 4, 0, 0, 0, 0, time.UTC)); err != nil || len(got) != 3 {
		t.Fatalf("LoadAll at the limit=%v err=%v", got, err)
	}
}

func TestHandleOutputEncodesAndMarks(t *testing.T) {
	pio, store := newIO(t)
	counter := &byteCounter{ops: map[string]int{}}
	pio.Observer = counter
	body := bytes.Repeat([]byte("orders,"), 512)

	if err := pio.HandleOutput(context.Background(), orders, "2020-01-01", body); err != nil {
		t.Fatalf("HandleOutput err=%v", err)
	}
	obj, ok := store.objects["assets/partitions/warehouse/orders/2020-01-01"]
	if !ok {
		t.Fatalf("object not written, have %v", store.objects)
	}
	if obj.opts.ContentEncoding != "zstd" {
		t.Fatalf("ContentEncoding=%q, want zstd", obj.opts.ContentEncoding)
	}
	if len(obj.data) >= len(body) {
		t.Fatalf("expected compressed object, got %d >= %d bytes", len(obj.data), len(body))
	}
	if counter.ops["put"] != len(obj.data) {
		t.Fatalf("observed put bytes=%d, want %d", counter.ops["put"], len(obj.data))
	}

	got, err := pio.LoadInput(context.Background(), orders, mustDaily(t), mapping.RangeSubset(partitions.KeyRange{Start: "2020-01-01", End: "2020-01-01"}))
	if err != nil {
		t.Fatalf("LoadInput err=%v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[0].Data, body) {
		t.Fatalf("round trip mismatch")
	}
}

func TestHandleOutputRejectsReservedKey(t *testing.T) {
	pio, _ := newIO(t)
	if err := pio.HandleOutput(context.Background(), "a", UnpartitionedKey, nil); err == nil {
		t.Fatalf("expected reserved key error")
	}
	if err := pio.HandleOutput(context.Background(), "", "x", nil); err == nil {
		t.Fatalf("expected invalid asset key error")
	}
}

func TestLoadInputRangeInKeyOrder(t *testing.T) {
	pio, store := newIO(t)
	pio.Concurrency = 2
	ctx := context.Background()
	def := mustDaily(t)
	r, err := partitions.NewKeyRange(def, "2020-01-01", "2020-01-05")
	if err != nil {
		t.Fatalf("NewKeyRange err=%v", err)
	}
	keys, _ := r.KeySlice(def)
	for _, key := range keys {
		if err := pio.HandleOutput(ctx, "events", key, []byte("data-"+key)); err != nil {
			t.Fatalf("HandleOutput err=%v", err)
		}
	}

	got, err := pio.LoadInput(ctx, "events", def, mapping.RangeSubset(r))
	if err != nil {
		t.Fatalf("LoadInput err=%v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("loaded %d partitions, want %d", len(got), len(keys))
	}
	for i, p := range got {
		if p.Key != keys[i] || string(p.Data) != "data-"+keys[i] {
			t.Fatalf("partition %d = %q/%q", i, p.Key, p.Data)
		}
	}
	if store.gets != len(keys) {
		t.Fatalf("gets=%d, want %d", store.gets, len(keys))
	}
}

func TestLoadInputMissingPartition(t *testing.T) {
	pio, _ := newIO(t)
	ctx := context.Background()
	def := mustDaily(t)
	if err := pio.HandleOutput(ctx, "events", "2020-01-01", []byte("a")); err != nil {
		t.Fatalf("HandleOutput err=%v", err)
	}
	_, err := pio.LoadInput(ctx, "events", def, mapping.RangeSubset(partitions.KeyRange{Start: "2020-01-01", End: "2020-01-02"}))
	if !errors.Is(err, ErrPartitionMissing) {
		t.Fatalf("expected ErrPartitionMissing, got %v", err)
	}
}

func TestLoadInputSubsetKinds(t *testing.T) {
	pio, _ := newIO(t)
	ctx := context.Background()
	def := mustDaily(t)
	if err := pio.HandleOutput(ctx, "countries", "", []byte("us,eu")); err != nil {
		t.Fatalf("HandleOutput err=%v", err)
	}

	got, err := pio.LoadInput(ctx, "countries", nil, mapping.Unpartitioned())
	if err != nil || len(got) != 1 || string(got[0].Data) != "us,eu" || got[0].Key != "" {
		t.Fatalf("unpartitioned load=%v err=%v", got, err)
	}
	got, err = pio.LoadInput(ctx, "countries", nil, mapping.All())
	if err != nil || len(got) != 1 {
		t.Fatalf("all of unpartitioned load=%v err=%v", got, err)
	}
	got, err = pio.LoadInput(ctx, "events", def, mapping.None())
	if err != nil || len(got) != 0 {
		t.Fatalf("none load=%v err=%v", got, err)
	}
	if _, err := pio.LoadInput(ctx, "events", def, mapping.All()); !errors.Is(err, ErrUnboundedSubset) {
		t.Fatalf("expected ErrUnboundedSubset, got %v", err)
	}
	if _, err := pio.LoadInput(ctx, "countries", nil, mapping.RangeSubset(partitions.KeyRange{Start: "a", End: "b"})); !errors.Is(err, partitions.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestLoadAllAsOf(t *testing.T) {
	pio, _ := newIO(t)
	ctx := context.Background()
	def := mustDaily(t)
	for _, key := range []string{"2020-01-01", "2020-01-02", "2020-01-03"} {
		if err := pio.HandleOutput(ctx, "events", key, []byte(key)); err != nil {
			t.Fatalf("HandleOutput err=%v", err)
		}
	}
	asOf := time.Date(2020, 1, 4, 0, 0, 0, 0, time.UTC)
	got, err := pio.LoadAll(ctx, "events", def, asOf)
	if err != nil {
		t.Fatalf("LoadAll err=%v", err)
	}
	if len(got) != 3 || got[2].Key != "2020-01-03" {
		t.Fatalf("LoadAll=%v", got)
	}
}

func TestExistsAndDelete(t *testing.T) {
	pio, _ := newIO(t)
	ctx := context.Background()
	if err := pio.HandleOutput(ctx, "events", "2020-01-01", []byte("x")); err != nil {
		t.Fatalf("HandleOutput err=%v", err)
	}
	ok, err := pio.Exists(ctx, "events", "2020-01-01")
	if err != nil || !ok {
		t.Fatalf("Exists=%v err=%v", ok, err)
	}
	if err := pio.Delete(ctx, "events", "2020-01-01"); err != nil {
		t.Fatalf("Delete err=%v", err)
	}
	ok, err = pio.Exists(ctx, "events", "2020-01-01")
	if err != nil || ok {
		t.Fatalf("Exists after delete=%v err=%v", ok, err)
	}
}

func TestDecodeRejectsUnknownEncoding(t *testing.T) {
	if _, err := decode([]byte("x"), "br"); err == nil {
		t.Fatalf("expected error for unknown encoding")
	}
	out, err := decode([]byte("plain"), "")
	if err != nil || string(out) != "plain" {
		t.Fatalf("identity decode=%q err=%v", out, err)
	}
}
