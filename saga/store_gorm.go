package saga

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// sagaRecord Saga 表结构.
type sagaRecord struct {
	ID               string `gorm:"primaryKey;size:36"`
	Name             string `gorm:"size:128"`
	TenantID         string `gorm:"size:64"`
	BusinessUnitID   string `gorm:"size:64"`
	CorrelationID    string `gorm:"index;size:64"`
	BusinessKey      string `gorm:"uniqueIndex;size:128"`
	Status           string `gorm:"index;size:32"`
	TotalSteps       int
	CurrentStepIndex int
	Data             string `gorm:"type:text"`
	StartedAt        time.Time
	CompletedAt      *time.Time
	CompensatedAt    *time.Time
	Version          int64
}

// TableName 指定表名.
func (sagaRecord) TableName() string { return "sagas" }

// stepRecord 步骤表结构.
type stepRecord struct {
	ID                   string `gorm:"primaryKey;size:36"`
	SagaID               string `gorm:"index;size:36"`
	Sequence             int
	Name                 string `gorm:"size:128"`
	Type                 string `gorm:"size:64"`
	Status               string `gorm:"size:32"`
	ServiceName          string `gorm:"size:128"`
	Endpoint             string `gorm:"size:255"`
	CompensationEndpoint string `gorm:"size:255"`
	RetryCount           int
	MaxRetries           int
	InputData            string `gorm:"type:text"`
	OutputData           string `gorm:"type:text"`
	ErrorMessage         string `gorm:"type:text"`
	ErrorData            string `gorm:"type:text"`
	StartedAt            *time.Time
	CompletedAt          *time.Time
}

// TableName 指定表名.
func (stepRecord) TableName() string { return "saga_steps" }

// GormStore 基于关系数据库的聚合存储.
//
// 版本检查通过条件更新实现：
// UPDATE sagas SET ... WHERE id = ? AND version = ?，
// 影响行数为 0 即判定版本冲突.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建数据库存储.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate 迁移表结构.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&sagaRecord{}, &stepRecord{})
}

// Create 创建聚合.
func (s *GormStore) Create(ctx context.Context, sg *Saga) error {
	record, steps, err := toRecords(sg)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSaga
			}
			return err
		}
		if len(steps) > 0 {
			if err := tx.Create(&steps).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Save 保存聚合，版本不匹配时返回 ErrVersionConflict.
func (s *GormStore) Save(ctx context.Context, sg *Saga) error {
	expected := sg.Version
	sg.Version++

	record, steps, err := toRecords(sg)
	if err != nil {
		sg.Version = expected
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&sagaRecord{}).
			Where("id = ? AND version = ?", sg.ID, expected).
			Updates(map[string]any{
				"status":             record.Status,
				"current_step_index": record.CurrentStepIndex,
				"data":               record.Data,
				"completed_at":       record.CompletedAt,
				"compensated_at":     record.CompensatedAt,
				"version":            record.Version,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&sagaRecord{}).Where("id = ?", sg.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrSagaNotFound
			}
			return ErrVersionConflict
		}

		for i := range steps {
			if err := tx.Save(&steps[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		sg.Version = expected
		return err
	}
	return nil
}

// Get 加载聚合.
func (s *GormStore) Get(ctx context.Context, id string) (*Saga, error) {
	var record sagaRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return s.load(ctx, &record)
}

// GetByStep 根据步骤标识加载所属聚合.
func (s *GormStore) GetByStep(ctx context.Context, stepID string) (*Saga, error) {
	var step stepRecord
	if err := s.db.WithContext(ctx).First(&step, "id = ?", stepID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}
	return s.Get(ctx, step.SagaID)
}

// GetByBusinessKey 根据业务键加载聚合.
func (s *GormStore) GetByBusinessKey(ctx context.Context, businessKey string) (*Saga, error) {
	var record sagaRecord
	if err := s.db.WithContext(ctx).First(&record, "business_key = ?", businessKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return s.load(ctx, &record)
}

// ListByStatus 列出指定状态的 Saga.
func (s *GormStore) ListByStatus(ctx context.Context, status SagaStatus, limit int) ([]*Saga, error) {
	query := s.db.WithContext(ctx).Where("status = ?", string(status))
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []sagaRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	result := make([]*Saga, 0, len(records))
	for i := range records {
		sg, err := s.load(ctx, &records[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sg)
	}
	return result, nil
}

// load 读取步骤并组装完整聚合.
func (s *GormStore) load(ctx context.Context, record *sagaRecord) (*Saga, error) {
	var steps []stepRecord
	if err := s.db.WithContext(ctx).
		Where("saga_id = ?", record.ID).
		Order("sequence asc").
		Find(&steps).Error; err != nil {
		return nil, err
	}
	return fromRecords(record, steps)
}

func toRecords(sg *Saga) (*sagaRecord, []stepRecord, error) {
	data, err := marshalMap(sg.Data)
	if err != nil {
		return nil, nil, err
	}

	record := &sagaRecord{
		ID:               sg.ID,
		Name:             sg.Name,
		TenantID:         sg.TenantID,
		BusinessUnitID:   sg.BusinessUnitID,
		CorrelationID:    sg.CorrelationID,
		BusinessKey:      sg.BusinessKey,
		Status:           string(sg.Status),
		TotalSteps:       sg.TotalSteps,
		CurrentStepIndex: sg.CurrentStepIndex,
		Data:             data,
		StartedAt:        sg.StartedAt,
		CompletedAt:      sg.CompletedAt,
		CompensatedAt:    sg.CompensatedAt,
		Version:          sg.Version,
	}

	steps := make([]stepRecord, 0, len(sg.Steps))
	for _, step := range sg.Steps {
		input, err := marshalMap(step.InputData)
		if err != nil {
			return nil, nil, err
		}
		output, err := marshalMap(step.OutputData)
		if err != nil {
			return nil, nil, err
		}
		errorData, err := marshalMap(step.ErrorData)
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, stepRecord{
			ID:                   step.ID,
			SagaID:               step.SagaID,
			Sequence:             step.Sequence,
			Name:                 step.Name,
			Type:                 step.Type,
			Status:               string(step.Status),
			ServiceName:          step.ServiceName,
			Endpoint:             step.Endpoint,
			CompensationEndpoint: step.CompensationEndpoint,
			RetryCount:           step.RetryCount,
			MaxRetries:           step.MaxRetries,
			InputData:            input,
			OutputData:           output,
			ErrorMessage:         step.ErrorMessage,
			ErrorData:            errorData,
			StartedAt:            step.StartedAt,
			CompletedAt:          step.CompletedAt,
		})
	}

	return record, steps, nil
}

func fromRecords(record *sagaRecord, steps []stepRecord) (*Saga, error) {
	data, err := unmarshalMap(record.Data)
	if err != nil {
		return nil, err
	}

	sg := &Saga{
		ID:               record.ID,
		Name:             record.Name,
		TenantID:         record.TenantID,
		BusinessUnitID:   record.BusinessUnitID,
		CorrelationID:    record.CorrelationID,
		BusinessKey:      record.BusinessKey,
		Status:           SagaStatus(record.Status),
		TotalSteps:       record.TotalSteps,
		CurrentStepIndex: record.CurrentStepIndex,
		Data:             data,
		StartedAt:        record.StartedAt,
		CompletedAt:      record.CompletedAt,
		CompensatedAt:    record.CompensatedAt,
		Version:          record.Version,
	}

	sg.Steps = make([]*Step, 0, len(steps))
	for i := range steps {
		sr := &steps[i]
		input, err := unmarshalMap(sr.InputData)
		if err != nil {
			return nil, err
		}
		output, err := unmarshalMap(sr.OutputData)
		if err != nil {
			return nil, err
		}
		errorData, err := unmarshalMap(sr.ErrorData)
		if err != nil {
			return nil, err
		}
		sg.Steps = append(sg.Steps, &Step{
			ID:                   sr.ID,
			SagaID:               sr.SagaID,
			Sequence:             sr.Sequence,
			Name:                 sr.Name,
			Type:                 sr.Type,
			Status:               StepStatus(sr.Status),
			ServiceName:          sr.ServiceName,
			Endpoint:             sr.Endpoint,
			CompensationEndpoint: sr.CompensationEndpoint,
			RetryCount:           sr.RetryCount,
			MaxRetries:           sr.MaxRetries,
			InputData:            input,
			OutputData:           output,
			ErrorMessage:         sr.ErrorMessage,
			ErrorData:            errorData,
			StartedAt:            sr.StartedAt,
			CompletedAt:          sr.CompletedAt,
		})
	}

	return sg, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMap(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
