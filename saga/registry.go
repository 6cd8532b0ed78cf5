package saga

// Registry 模板注册表.
//
// 进程启动时一次性注册全部模板，此后只读；
// 写入不再发生，因此并发查找无需加锁.
type Registry struct {
	templates map[string]*Template
}

// NewRegistry 创建模板注册表.
func NewRegistry(templates ...*Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNewRegistry 创建模板注册表，失败时 panic.
func MustNewRegistry(templates ...*Template) *Registry {
	r, err := NewRegistry(templates...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) register(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, exists := r.templates[t.Name]; exists {
		return ErrDuplicateTemplate
	}
	r.templates[t.Name] = t
	return nil
}

// Lookup 根据名称查找模板.
func (r *Registry) Lookup(name string) (*Template, error) {
	t, ok := r.templates[name]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return t, nil
}

// Names 返回所有已注册模板名称.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
