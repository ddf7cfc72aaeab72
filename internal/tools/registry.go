package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// Definition: зарегистрированный инструмент. Принадлежит только реестру.
type Definition struct {
	Name        string
	Description string
	Handler     Handler

	schema *jsonschema.Schema
}

// Info: описание инструмента для модели и админки.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Option func(*Definition)

// WithSchema задаёт JSON Schema параметров инструмента.
// Payload, не прошедший проверку, не доходит до обработчика.
func WithSchema(schemaJSON string) Option {
	return func(d *Definition) {
		d.schema = mustCompile(d.Name, schemaJSON)
	}
}

// Registry это явный объект вместо глобальной мапы. Инжектится в оркестратор,
// в тестах у каждого свой экземпляр.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Definition
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Definition),
		logger: logger.Named("tools"),
	}
}

// Register сохраняет инструмент. Повторная регистрация перезаписывает прежний (last wins).
// Пустое имя, nil-обработчик или битая схема: ошибка программиста, паника.
func (r *Registry) Register(name string, h Handler, description string, opts ...Option) {
	if name == "" {
		panic("tools: register with empty name")
	}
	if h == nil {
		panic(fmt.Sprintf("tools: register %q with nil handler", name))
	}

	def := &Definition{Name: name, Description: description, Handler: h}
	for _, opt := range opts {
		opt(def)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		r.logger.Warn("tool re-registered, previous definition overwritten", zap.String("tool", name))
	}
	r.tools[name] = def
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names возвращает отсортированный список имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Describe() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for _, d := range r.tools {
		infos = append(infos, Info{Name: d.Name, Description: d.Description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Execute находит обработчик и вызывает его. Никогда не паникует и не возвращает error:
// отсутствие инструмента, невалидный payload и сбой обработчика приходят как Result.Err.
// Логирование: только здесь, на границе.
func (r *Registry) Execute(ctx context.Context, name string, payload json.RawMessage, call Call) Result {
	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("tool not found", zap.String("tool", name), zap.String("agent_id", call.AgentID))
		return Fail(name, ErrToolNotFound)
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage(`{}`)
	}

	if def.schema != nil {
		if err := validate(def.schema, payload); err != nil {
			r.logger.Warn("tool payload rejected",
				zap.String("tool", name),
				zap.String("agent_id", call.AgentID),
				zap.Error(err))
			return Fail(name, fmt.Errorf("%w: %v", ErrInvalidPayload, err))
		}
	}

	start := time.Now()
	out, err := invoke(ctx, def.Handler, payload, call)
	if err != nil {
		r.logger.Error("tool execution failed",
			zap.String("tool", name),
			zap.String("agent_id", call.AgentID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return Fail(name, fmt.Errorf("%w: %v", ErrToolExecution, err))
	}

	r.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.String("agent_id", call.AgentID),
		zap.Duration("duration", time.Since(start)))
	return Ok(name, out)
}

// invoke изолирует панику обработчика.
func invoke(ctx context.Context, h Handler, payload json.RawMessage, call Call) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, payload, call)
}

func mustCompile(name, schemaJSON string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(schemaJSON)))
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %q is not valid JSON: %v", name, err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".json", doc); err != nil {
		panic(fmt.Sprintf("tools: schema for %q: %v", name, err))
	}
	sch, err := c.Compile(name + ".json")
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %q does not compile: %v", name, err))
	}
	return sch
}

func validate(sch *jsonschema.Schema, payload json.RawMessage) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return sch.Validate(inst)
}
