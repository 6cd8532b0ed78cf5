package saga

import (
	"context"
	"sync"
)

// MemoryStore 基于内存的聚合存储.
//
// 适用于单机部署或测试场景. 版本检查在同一把锁内完成，
// 语义与持久化实现的条件更新一致.
type MemoryStore struct {
	mu          sync.RWMutex
	sagas       map[string]*Saga
	byStep      map[string]string
	byBusiness  map[string]string
}

// NewMemoryStore 创建内存存储.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sagas:      make(map[string]*Saga),
		byStep:     make(map[string]string),
		byBusiness: make(map[string]string),
	}
}

// Create 创建聚合.
func (s *MemoryStore) Create(ctx context.Context, sg *Saga) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sagas[sg.ID]; exists {
		return ErrDuplicateSaga
	}
	if _, exists := s.byBusiness[sg.BusinessKey]; exists {
		return ErrDuplicateSaga
	}

	copied := sg.Clone()
	s.sagas[sg.ID] = copied
	s.byBusiness[sg.BusinessKey] = sg.ID
	for _, step := range sg.Steps {
		s.byStep[step.ID] = sg.ID
	}
	return nil
}

// Save 保存聚合，版本不匹配时返回 ErrVersionConflict.
func (s *MemoryStore) Save(ctx context.Context, sg *Saga) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sagas[sg.ID]
	if !ok {
		return ErrSagaNotFound
	}
	if current.Version != sg.Version {
		return ErrVersionConflict
	}

	sg.Version++
	s.sagas[sg.ID] = sg.Clone()
	return nil
}

// Get 加载聚合.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Saga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sg, ok := s.sagas[id]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return sg.Clone(), nil
}

// GetByStep 根据步骤标识加载所属聚合.
func (s *MemoryStore) GetByStep(ctx context.Context, stepID string) (*Saga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sagaID, ok := s.byStep[stepID]
	if !ok {
		return nil, ErrStepNotFound
	}
	sg, ok := s.sagas[sagaID]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return sg.Clone(), nil
}

// GetByBusinessKey 根据业务键加载聚合.
func (s *MemoryStore) GetByBusinessKey(ctx context.Context, businessKey string) (*Saga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sagaID, ok := s.byBusiness[businessKey]
	if !ok {
		return nil, ErrSagaNotFound
	}
	sg, ok := s.sagas[sagaID]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return sg.Clone(), nil
}

// ListByStatus 列出指定状态的 Saga.
func (s *MemoryStore) ListByStatus(ctx context.Context, status SagaStatus, limit int) ([]*Saga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Saga
	for _, sg := range s.sagas {
		if sg.Status != status {
			continue
		}
		result = append(result, sg.Clone())
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
