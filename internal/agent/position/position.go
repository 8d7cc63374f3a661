package position

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"robot_crypt/internal/domain"
)

// Store 内存持仓表，每个币对最多一个持仓。
// Lock 返回的解锁函数用于串行化同一币对的决策与下单，不同币对互不阻塞。
type Store struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
	pending   map[string]domain.PendingOrder

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		positions: make(map[string]domain.Position),
		pending:   make(map[string]domain.PendingOrder),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Lock 获取币对级互斥锁
func (s *Store) Lock(symbol string) func() {
	s.lockMu.Lock()
	m, ok := s.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		s.locks[symbol] = m
	}
	s.lockMu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *Store) Get(symbol string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// Put 新增持仓，同一币对已有持仓时返回 domain.ErrPositionExists
func (s *Store) Put(pos domain.Position) error {
	if pos.Symbol == "" {
		return fmt.Errorf("position without symbol")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.Symbol]; ok {
		return fmt.Errorf("%w: %s", domain.ErrPositionExists, pos.Symbol)
	}
	s.positions[pos.Symbol] = pos
	log.Printf("[持仓] + %s 数量=%.8f 成本=%.8f", pos.Symbol, pos.Quantity, pos.EntryPrice)
	return nil
}

func (s *Store) Remove(symbol string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if ok {
		delete(s.positions, symbol)
		log.Printf("[持仓] - %s", symbol)
	}
	return p, ok
}

// All 按币对排序返回所有持仓的副本
func (s *Store) All() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// SetPending 记录结果未知的订单，对账前该币对不再下新单
func (s *Store) SetPending(o domain.PendingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[o.Symbol] = o
}

func (s *Store) Pending(symbol string) (domain.PendingOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.pending[symbol]
	return o, ok
}

func (s *Store) ClearPending(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, symbol)
}

// Export 导出持仓和待对账订单（用于快照）
func (s *Store) Export() (map[string]domain.Position, map[string]domain.PendingOrder) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions := make(map[string]domain.Position, len(s.positions))
	for k, v := range s.positions {
		positions[k] = v
	}
	pending := make(map[string]domain.PendingOrder, len(s.pending))
	for k, v := range s.pending {
		pending[k] = v
	}
	return positions, pending
}

// Restore 用快照内容替换当前状态
func (s *Store) Restore(positions map[string]domain.Position, pending map[string]domain.PendingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make(map[string]domain.Position, len(positions))
	for k, v := range positions {
		v.Symbol = k
		s.positions[k] = v
	}
	s.pending = make(map[string]domain.PendingOrder, len(pending))
	for k, v := range pending {
		v.Symbol = k
		s.pending[k] = v
	}
}
