package jobman

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh runner for one execution of a job type.
type Factory func() Runner

// Registry is the process-wide job type catalogue: a mapping from type
// name to runner factory, populated once at startup by explicit
// registration calls. There is no runtime discovery; a type the process
// never registered does not exist for this node.
type Registry struct {
	mu      sync.Mutex
	factory map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factory: make(map[string]Factory)}
}

// Register adds a job type to the registry. The factory is probed once
// right here, so a type unable to produce a runner fails at
// registration time, not at first execution.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("job type name required")
	}
	if f == nil {
		return fmt.Errorf("job type %v: nil factory", name)
	}
	if f() == nil {
		return fmt.Errorf("job type %v: factory produced no runner", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factory[name]; ok {
		return fmt.Errorf("job type %v already registered", name)
	}
	r.factory[name] = f
	return nil
}

// Types returns the registered job type names, sorted.
// It is the discovered-type input of Host.Reconcile.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.factory))
	for t := range r.factory {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Runner builds a fresh runner for the given job type.
func (r *Registry) Runner(typeName string) (Runner, error) {
	r.mu.Lock()
	f, ok := r.factory[typeName]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown job type: %v", typeName)
	}
	return f(), nil
}

// NewJob creates and persists a new pending job of a registered type
// with the given parameters.
func (r *Registry) NewJob(typeName string, svc JobService, params Params) (*Job, error) {
	runner, err := r.Runner(typeName)
	if err != nil {
		return nil, err
	}
	return NewJob(typeName, runner, svc, params)
}

// Builder assembles a job type from a name, a process function and
// optional hooks, and registers it. It replaces building job subtypes
// out of thin air at runtime: construction is an explicit step.
type Builder struct {
	Name    string
	Process func(ctx context.Context, j *Job) error
	Pre     func(ctx context.Context, j *Job) error
	Post    func(ctx context.Context, j *Job) error
}

// Register registers the built job type.
// A builder without a process function is a contract violation and is
// rejected here.
func (b Builder) Register(r *Registry) error {
	if b.Process == nil {
		return fmt.Errorf("job type %v: process function required", b.Name)
	}
	process, pre, post := b.Process, b.Pre, b.Post
	return r.Register(b.Name, func() Runner {
		return &funcRunner{process: process, pre: pre, post: post}
	})
}

// funcRunner adapts plain functions to the runner interfaces.
type funcRunner struct {
	process func(ctx context.Context, j *Job) error
	pre     func(ctx context.Context, j *Job) error
	post    func(ctx context.Context, j *Job) error
}

func (r *funcRunner) Process(ctx context.Context, j *Job) error {
	return r.process(ctx, j)
}

func (r *funcRunner) PreProcess(ctx context.Context, j *Job) error {
	if r.pre == nil {
		return nil
	}
	return r.pre(ctx, j)
}

func (r *funcRunner) PostProcess(ctx context.Context, j *Job) error {
	if r.post == nil {
		return nil
	}
	return r.post(ctx, j)
}
