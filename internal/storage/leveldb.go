package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"p2pswap/internal/logging"
	"p2pswap/internal/types"
)

const defaultCacheSize = 4096

type LevelDBStore struct {
	db     *leveldb.DB
	cache  *lru.Cache[types.Hash, *types.Intent]
	sync   bool
	logger logging.Logger
}

// LevelDBOptions tunes NewLevelDB. Zero values select defaults.
type LevelDBOptions struct {
	CacheSize int
	// SyncWrites fsyncs every committed batch.
	SyncWrites bool
	Logger     logging.Logger
}

func NewLevelDB(path string, o LevelDBOptions) (*LevelDBStore, error) {
	p := filepath.Clean(path)
	db, err := leveldb.OpenFile(p, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", p, err)
	}
	if o.CacheSize <= 0 {
		o.CacheSize = defaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = logging.NewDefaultLogger()
	}
	cache, err := lru.New[types.Hash, *types.Intent](o.CacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &LevelDBStore{db: db, cache: cache, sync: o.SyncWrites, logger: o.Logger}, nil
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

// Get retrieves a value by key from the database
func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// Put stores a key-value pair in the database
func (s *LevelDBStore) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

const (
	prefixIntent   = "in:"
	prefixPair     = "mp:"
	prefixRelayer  = "rl:"
	prefixSequence = "sq:"
)

func keyIntent(id types.Hash) []byte     { return []byte(prefixIntent + id.Hex()) }
func keyMatchedPair(index uint64) []byte { return []byte(fmt.Sprintf("mp:%020d", index)) }
func keyRelayer(a types.Address) []byte  { return []byte(prefixRelayer + a.Hex()) }
func keySequence(a types.Address) []byte { return []byte(prefixSequence + a.Hex()) }
func keyStats() []byte                   { return []byte("st") }
func keyConfig() []byte                  { return []byte("cf") }
func keyOwner() []byte                   { return []byte("ow") }
func keyHeight() []byte                  { return []byte("ht") }

func (s *LevelDBStore) Commit(b *Batch) error {
	if b.Empty() {
		return nil
	}
	batch := new(leveldb.Batch)
	if b.Owner != nil {
		batch.Put(keyOwner(), b.Owner.Bytes())
	}
	for _, in := range b.Intents {
		v, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode intent %s: %w", in.ID.Hex(), err)
		}
		batch.Put(keyIntent(in.ID), v)
	}
	for _, mp := range b.MatchedPairs {
		v, err := json.Marshal(mp)
		if err != nil {
			return fmt.Errorf("encode matched pair %d: %w", mp.Index, err)
		}
		batch.Put(keyMatchedPair(mp.Index), v)
	}
	if b.Stats != nil {
		v, err := json.Marshal(b.Stats)
		if err != nil {
			return err
		}
		batch.Put(keyStats(), v)
	}
	for _, a := range sortedAddresses(b.Relayers) {
		if b.Relayers[a] {
			batch.Put(keyRelayer(a), []byte{1})
		} else {
			batch.Delete(keyRelayer(a))
		}
	}
	if b.Configuration != nil {
		v, err := json.Marshal(b.Configuration)
		if err != nil {
			return err
		}
		batch.Put(keyConfig(), v)
	}
	for _, a := range sortedAddresses(b.Sequences) {
		batch.Put(keySequence(a), []byte(strconv.FormatUint(b.Sequences[a], 10)))
	}
	if b.Height != nil {
		batch.Put(keyHeight(), []byte(strconv.FormatUint(*b.Height, 10)))
	}
	for _, k := range sortedKeys(b.Records) {
		batch.Put([]byte(k), b.Records[k])
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	for _, in := range b.Intents {
		s.cache.Add(in.ID, in.Clone())
	}
	return nil
}

func (s *LevelDBStore) GetIntent(id types.Hash) (*types.Intent, error) {
	if in, ok := s.cache.Get(id); ok {
		return in.Clone(), nil
	}
	data, err := s.db.Get(keyIntent(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: intent %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	var in types.Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode intent %s: %w", id.Hex(), err)
	}
	s.cache.Add(id, in.Clone())
	return &in, nil
}

// ListMatchedPairs relies on the zero-padded index keeping iteration in
// append order.
func (s *LevelDBStore) ListMatchedPairs(offset, limit int) ([]*types.MatchedPair, error) {
	if offset < 0 {
		offset = 0
	}
	rng := util.BytesPrefix([]byte(prefixPair))
	rng.Start = keyMatchedPair(uint64(offset))
	it := s.db.NewIterator(rng, nil)
	defer it.Release()
	out := make([]*types.MatchedPair, 0)
	for it.Next() {
		var mp types.MatchedPair
		if err := json.Unmarshal(it.Value(), &mp); err != nil {
			return nil, fmt.Errorf("decode matched pair %s: %w", it.Key(), err)
		}
		out = append(out, &mp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, it.Error()
}

func (s *LevelDBStore) LoadState() (*types.EngineState, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	st := &types.EngineState{
		Stats:         types.NewStats(),
		Relayers:      map[types.Address]bool{},
		Configuration: types.DefaultConfiguration(),
		Sequences:     map[types.Address]uint64{},
	}
	found := false

	if v, err := snap.Get(keyOwner(), nil); err == nil {
		st.Owner = common.BytesToAddress(v)
		found = true
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return nil, err
	}
	if v, err := snap.Get(keyStats(), nil); err == nil {
		if err := json.Unmarshal(v, &st.Stats); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
		found = true
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return nil, err
	}
	if v, err := snap.Get(keyConfig(), nil); err == nil {
		if err := json.Unmarshal(v, &st.Configuration); err != nil {
			return nil, fmt.Errorf("decode configuration: %w", err)
		}
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return nil, err
	}
	if v, err := snap.Get(keyHeight(), nil); err == nil {
		if st.Height, err = strconv.ParseUint(string(v), 10, 64); err != nil {
			return nil, fmt.Errorf("decode height: %w", err)
		}
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return nil, err
	}

	it := snap.NewIterator(util.BytesPrefix([]byte(prefixIntent)), nil)
	for it.Next() {
		var in types.Intent
		if err := json.Unmarshal(it.Value(), &in); err != nil {
			it.Release()
			return nil, fmt.Errorf("decode intent %s: %w", it.Key(), err)
		}
		st.Intents = append(st.Intents, &in)
		found = true
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}
	types.SortIntents(st.Intents)

	it = snap.NewIterator(util.BytesPrefix([]byte(prefixPair)), nil)
	for it.Next() {
		var mp types.MatchedPair
		if err := json.Unmarshal(it.Value(), &mp); err != nil {
			it.Release()
			return nil, fmt.Errorf("decode matched pair %s: %w", it.Key(), err)
		}
		st.MatchedPairs = append(st.MatchedPairs, &mp)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}

	it = snap.NewIterator(util.BytesPrefix([]byte(prefixRelayer)), nil)
	for it.Next() {
		st.Relayers[common.HexToAddress(strings.TrimPrefix(string(it.Key()), prefixRelayer))] = true
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}

	it = snap.NewIterator(util.BytesPrefix([]byte(prefixSequence)), nil)
	for it.Next() {
		n, err := strconv.ParseUint(string(it.Value()), 10, 64)
		if err != nil {
			it.Release()
			return nil, fmt.Errorf("decode sequence %s: %w", it.Key(), err)
		}
		st.Sequences[common.HexToAddress(strings.TrimPrefix(string(it.Key()), prefixSequence))] = n
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}
	s.logger.Infof("Loaded %d intents and %d matched pairs from leveldb", len(st.Intents), len(st.MatchedPairs))
	return st, nil
}
