// Package rounds persists the append-only, per-asset price round history
// of the aggregated oracle. Rounds are never rewritten or deleted; the
// oracle rebuilds its in-memory blend window from this log on restart.
package rounds

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/pawnfi/lending-go/internal/domain"
)

const (
	segmentThreshold = 1000
	maxSegments      = 100

	roundKeyPrefix = "round_"
)

// Store is a WAL-backed append-only round log.
type Store struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

// NewStore opens (or creates) the round log in dir.
func NewStore(dir string) (*Store, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "round_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init round store WAL")
	}

	return &Store{wal: wal}, nil
}

// Append persists round number id for asset.
func (s *Store) Append(asset common.Address, id uint64, r domain.PriceRound) error {
	if s == nil || s.wal == nil {
		return errors.New("round store is not initialized")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal price round")
	}

	key := fmt.Sprintf("%s%s_%d", roundKeyPrefix, strings.ToLower(asset.Hex()), id)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	return errors.Wrap(s.wal.Write(next, key, payload), "persist price round")
}

// Replay calls fn for every stored round in append order.
func (s *Store) Replay(fn func(asset common.Address, id uint64, r domain.PriceRound) error) error {
	if s == nil || s.wal == nil {
		return errors.New("round store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, roundKeyPrefix) {
			continue
		}
		asset, id, err := parseRoundKey(msg.Key)
		if err != nil {
			return err
		}

		var r domain.PriceRound
		if err := json.Unmarshal(msg.Value, &r); err != nil {
			return errors.Wrap(err, "decode stored round")
		}
		if err := fn(asset, id, r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

func parseRoundKey(key string) (common.Address, uint64, error) {
	rest := strings.TrimPrefix(key, roundKeyPrefix)
	sep := strings.LastIndexByte(rest, '_')
	if sep < 0 {
		return common.Address{}, 0, fmt.Errorf("malformed round key %q", key)
	}

	id, err := strconv.ParseUint(rest[sep+1:], 10, 64)
	if err != nil {
		return common.Address{}, 0, errors.Wrapf(err, "malformed round id in key %q", key)
	}
	return common.HexToAddress(rest[:sep]), id, nil
}
