// Package sweeper 提供卡死步骤的周期性巡检.
//
// 同步调用被受理但异步结果迟迟不到时，步骤会停留在执行中。
// 巡检任务周期性扫描运行中的 Saga，把开始时间早于
// timeout × (maxRetries+1) × multiplier 的执行中步骤判定为卡死，
// 强制走失败处理路径（重试或补偿）。纯靠重读持久化状态工作，
// 进程重启后无需任何内存中的记录即可恢复.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tsukikage7/payment-saga/dispatch"
	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/saga"
)

// 默认配置值.
const (
	DefaultSpec       = "@every 1m"
	DefaultMultiplier = 1.0
	DefaultBatchSize  = 100
)

// FailureHandler 卡死步骤的失败处理回调，由编排器实现.
type FailureHandler interface {
	HandleStepFailure(ctx context.Context, stepID, errorMessage string, errorData map[string]any) error
}

// Sweeper 卡死步骤巡检.
type Sweeper struct {
	store   saga.Store
	table   *dispatch.Table
	handler FailureHandler

	spec       string
	multiplier float64
	batchSize  int
	logger     logger.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	started bool
}

// Option 巡检配置选项.
type Option func(*Sweeper)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(s *Sweeper) {
		s.logger = log
	}
}

// WithSpec 设置巡检周期的 cron 表达式.
func WithSpec(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithMultiplier 设置判定卡死的超时放大系数.
func WithMultiplier(multiplier float64) Option {
	return func(s *Sweeper) {
		if multiplier > 0 {
			s.multiplier = multiplier
		}
	}
}

// WithBatchSize 设置单轮扫描的 Saga 数量上限.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New 创建巡检任务.
func New(store saga.Store, table *dispatch.Table, handler FailureHandler, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if table == nil {
		return nil, ErrNilTable
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	s := &Sweeper{
		store:      store,
		table:      table,
		handler:    handler,
		spec:       DefaultSpec,
		multiplier: DefaultMultiplier,
		batchSize:  DefaultBatchSize,
		logger:     logger.Nop(),
		cron:       cron.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start 启动周期巡检.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.With(logger.Err(err)).Error("[Sweeper] 巡检失败")
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	s.cron.Start()
	s.started = true
	s.logger.With(logger.String("spec", s.spec)).Info("[Sweeper] 巡检已启动")
	return nil
}

// Stop 停止巡检，等待正在执行的一轮结束.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.started = false
	s.logger.Info("[Sweeper] 巡检已停止")
}

// Sweep 执行一轮巡检.
func (s *Sweeper) Sweep(ctx context.Context) error {
	sagas, err := s.store.ListByStatus(ctx, saga.SagaStatusRunning, s.batchSize)
	if err != nil {
		return err
	}

	swept := 0
	for _, sg := range sagas {
		step, ok := sg.CurrentStep()
		if !ok || step.Status != saga.StepStatusRunning || step.StartedAt == nil {
			continue
		}

		bound, err := s.stuckBound(step)
		if err != nil {
			s.logger.WithContext(ctx).With(
				logger.String("sagaId", sg.ID),
				logger.String("stepType", step.Type),
				logger.Err(err),
			).Error("[Sweeper] 步骤类型无法解析，跳过")
			continue
		}

		elapsed := time.Since(*step.StartedAt)
		if elapsed <= bound {
			continue
		}

		s.logger.WithContext(ctx).With(
			logger.String("sagaId", sg.ID),
			logger.String("stepName", step.Name),
			logger.Duration("elapsed", elapsed),
			logger.Duration("bound", bound),
		).Warn("[Sweeper] 步骤卡死，强制失败处理")

		if err := s.handler.HandleStepFailure(ctx, step.ID,
			fmt.Sprintf("步骤执行超过 %s 未收到结果", bound),
			map[string]any{"elapsed": elapsed.String(), "bound": bound.String()}); err != nil {
			s.logger.WithContext(ctx).With(
				logger.String("sagaId", sg.ID),
				logger.Err(err),
			).Error("[Sweeper] 失败处理出错")
			continue
		}
		swept++
	}

	if swept > 0 {
		s.logger.WithContext(ctx).With(
			logger.Int("scanned", len(sagas)),
			logger.Int("swept", swept),
		).Info("[Sweeper] 巡检回收了卡死步骤")
	}
	return nil
}

// stuckBound 计算步骤的卡死判定时限.
func (s *Sweeper) stuckBound(step *saga.Step) (time.Duration, error) {
	target, err := s.table.Resolve(step.Type)
	if err != nil {
		return 0, err
	}
	return time.Duration(float64(target.Timeout) * float64(step.MaxRetries+1) * s.multiplier), nil
}
