package saga

import "context"

// Store Saga 聚合存储接口.
//
// 持久化状态是唯一事实来源，任何权威状态都不只存在于内存中；
// 进程重启后仅凭重读存储即可恢复编排.
//
// Save 实现乐观并发控制：以传入聚合的 Version 为期望版本提交，
// 存储中版本不一致时返回 ErrVersionConflict，成功后版本号递增.
type Store interface {
	// Create 创建新的 Saga 聚合（含步骤与业务键索引）.
	Create(ctx context.Context, s *Saga) error

	// Save 保存聚合，版本不匹配时返回 ErrVersionConflict.
	Save(ctx context.Context, s *Saga) error

	// Get 根据 Saga 标识加载完整聚合（含全部步骤）.
	Get(ctx context.Context, id string) (*Saga, error)

	// GetByStep 根据步骤标识加载所属聚合.
	GetByStep(ctx context.Context, stepID string) (*Saga, error)

	// GetByBusinessKey 根据业务键加载聚合.
	GetByBusinessKey(ctx context.Context, businessKey string) (*Saga, error)

	// ListByStatus 列出指定状态的 Saga.
	ListByStatus(ctx context.Context, status SagaStatus, limit int) ([]*Saga, error)
}

// Clone 深拷贝聚合，用于存储实现隔离内部状态.
func (s *Saga) Clone() *Saga {
	copied := *s

	copied.Steps = make([]*Step, len(s.Steps))
	for i, step := range s.Steps {
		stepCopy := *step
		stepCopy.InputData = cloneMap(step.InputData)
		stepCopy.OutputData = cloneMap(step.OutputData)
		stepCopy.ErrorData = cloneMap(step.ErrorData)
		copied.Steps[i] = &stepCopy
	}

	copied.Data = cloneMap(s.Data)
	return &copied
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}
