package saga

import "time"

// StepDefinition 模板中的步骤定义.
type StepDefinition struct {
	// Name 步骤名称
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Type 步骤类型，派发时映射到下游目标
	Type string `json:"type" yaml:"type" mapstructure:"type"`

	// ServiceName 目标服务名称
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`

	// Endpoint 正向操作端点
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// CompensationEndpoint 补偿端点，为空表示不可补偿
	CompensationEndpoint string `json:"compensation_endpoint" yaml:"compensation_endpoint" mapstructure:"compensation_endpoint"`

	// MaxRetries 最大重试次数
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// Template 命名的步骤定义序列，运行期只读.
//
// Saga 启动时把定义克隆为具体步骤，模板本身从不被运行中的 Saga 修改.
type Template struct {
	// Name 模板名称
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Version 模板版本
	Version int `json:"version" yaml:"version" mapstructure:"version"`

	// Steps 步骤定义，顺序即执行顺序
	Steps []StepDefinition `json:"steps" yaml:"steps" mapstructure:"steps"`
}

// Validate 校验模板.
func (t *Template) Validate() error {
	if t.Name == "" {
		return ErrEmptyTemplateName
	}
	if len(t.Steps) == 0 {
		return ErrNoSteps
	}
	return nil
}

// Instantiate 从模板实例化一个新的 Saga.
//
// 步骤定义按顺序克隆为具体步骤，sequence 从 0 连续递增；
// endpoint、compensationEndpoint、maxRetries 与定义完全一致.
func (t *Template) Instantiate(tenant TenantContext, correlationID, businessKey string, initialData map[string]any) *Saga {
	s := &Saga{
		ID:             newSagaID(),
		Name:           t.Name,
		TenantID:       tenant.TenantID,
		BusinessUnitID: tenant.BusinessUnitID,
		CorrelationID:  correlationID,
		BusinessKey:    businessKey,
		Status:         SagaStatusPending,
		TotalSteps:     len(t.Steps),
		StartedAt:      time.Now(),
		Data:           initialData,
		Version:        1,
	}

	s.Steps = make([]*Step, 0, len(t.Steps))
	for i, def := range t.Steps {
		s.Steps = append(s.Steps, &Step{
			ID:                   newStepID(),
			SagaID:               s.ID,
			Sequence:             i,
			Name:                 def.Name,
			Type:                 def.Type,
			Status:               StepStatusPending,
			ServiceName:          def.ServiceName,
			Endpoint:             def.Endpoint,
			CompensationEndpoint: def.CompensationEndpoint,
			MaxRetries:           def.MaxRetries,
			InputData:            initialData,
		})
	}

	return s
}
