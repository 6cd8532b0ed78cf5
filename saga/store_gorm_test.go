package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/payment-saga/database"
	"github.com/Tsukikage7/payment-saga/logger"
)

// newGormTestStore 基于 sqlite 内存库创建存储，走生产环境的连接配置.
func newGormTestStore(t *testing.T, name string) *GormStore {
	t.Helper()

	db, err := database.NewDatabase(&database.Config{
		Driver:   "sqlite",
		DSN:      "file:" + name + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewGormStore(db.GORM())
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestGormStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newGormTestStore(t, "gorm-create")

	sg := paymentTemplate().Instantiate(TenantContext{TenantID: "t1"}, "corr-1", "pay-1", nil)
	require.NoError(t, store.Create(ctx, sg))

	loaded, err := store.Get(ctx, sg.ID)
	require.NoError(t, err)
	assert.Equal(t, sg.ID, loaded.ID)
	assert.Len(t, loaded.Steps, 3)

	byKey, err := store.GetByBusinessKey(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, sg.ID, byKey.ID)

	byStep, err := store.GetByStep(ctx, sg.Steps[1].ID)
	require.NoError(t, err)
	assert.Equal(t, sg.ID, byStep.ID)
}

func TestGormStoreRejectsDuplicateBusinessKey(t *testing.T) {
	ctx := context.Background()
	store := newGormTestStore(t, "gorm-duplicate")

	first := paymentTemplate().Instantiate(TenantContext{}, "corr-1", "pay-1", nil)
	require.NoError(t, store.Create(ctx, first))

	// 重投的触发事件实例化出新的 Saga，但业务键相同；
	// 唯一索引冲突必须映射为 ErrDuplicateSaga
	second := paymentTemplate().Instantiate(TenantContext{}, "corr-2", "pay-1", nil)
	assert.ErrorIs(t, store.Create(ctx, second), ErrDuplicateSaga)

	byKey, err := store.GetByBusinessKey(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byKey.ID)
}

func TestGormStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := newGormTestStore(t, "gorm-conflict")

	sg := paymentTemplate().Instantiate(TenantContext{}, "corr-1", "pay-1", nil)
	require.NoError(t, store.Create(ctx, sg))

	fresh, err := store.Get(ctx, sg.ID)
	require.NoError(t, err)

	require.NoError(t, fresh.Transition(SagaStatusRunning))
	require.NoError(t, store.Save(ctx, fresh))

	require.NoError(t, sg.Transition(SagaStatusRunning))
	assert.ErrorIs(t, store.Save(ctx, sg), ErrVersionConflict)
}
