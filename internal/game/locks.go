package game

import (
	"hash/fnv"
	"sync"
)

const lockShards = 32

type gameLock struct {
	mu   sync.Mutex
	refs int
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*gameLock
}

// LockMap serializes operations per game. Locks for distinct games are
// independent. An entry lives only while some goroutine holds or awaits
// it, so the map does not grow with the number of games ever seen.
type LockMap struct {
	shards [lockShards]lockShard
}

func NewLockMap() *LockMap {
	lm := &LockMap{}
	for i := range lm.shards {
		lm.shards[i].locks = make(map[string]*gameLock)
	}
	return lm
}

func (lm *LockMap) shard(gameID string) *lockShard {
	h := fnv.New32a()
	h.Write([]byte(gameID))
	return &lm.shards[h.Sum32()%lockShards]
}

// Lock blocks until the game's lock is held and returns the release
// function.
func (lm *LockMap) Lock(gameID string) func() {
	s := lm.shard(gameID)

	s.mu.Lock()
	gl, ok := s.locks[gameID]
	if !ok {
		gl = &gameLock{}
		s.locks[gameID] = gl
	}
	gl.refs++
	s.mu.Unlock()

	gl.mu.Lock()

	return func() {
		gl.mu.Unlock()
		s.mu.Lock()
		gl.refs--
		if gl.refs == 0 {
			delete(s.locks, gameID)
		}
		s.mu.Unlock()
	}
}

// Len reports how many games currently have a held or awaited lock.
func (lm *LockMap) Len() int {
	n := 0
	for i := range lm.shards {
		lm.shards[i].mu.Lock()
		n += len(lm.shards[i].locks)
		lm.shards[i].mu.Unlock()
	}
	return n
}
