// Package channels defines the ingress/egress adapter contract the
// MessagePipeline is driven through, and a registry for wiring multiple
// adapters (CLI, chat platforms, webhooks) into one runtime. Wire formats
// for any specific platform are owned by that adapter; this package only
// needs a channel's name for routing outbound replies back to it.
package channels

import (
	"context"
	"sync"
	"time"

	"github.com/openrt/agentcore/pkg/models"
)

// Adapter is the minimal contract for a channel connector.
type Adapter interface {
	// Type returns the channel's routing name (e.g. "cli", "telegram").
	Type() string
}

// LifecycleAdapter represents adapters that can start and stop.
type LifecycleAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboundAdapter represents adapters that can deliver a reply.
type OutboundAdapter interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// InboundAdapter represents adapters that emit inbound messages.
type InboundAdapter interface {
	Messages() <-chan models.InboundMessage
}

// HealthAdapter represents adapters that expose status.
type HealthAdapter interface {
	Status() Status
	HealthCheck(ctx context.Context) HealthStatus
}

// FullAdapter aggregates all adapter capabilities for convenience.
type FullAdapter interface {
	Adapter
	LifecycleAdapter
	OutboundAdapter
	InboundAdapter
	HealthAdapter
}

// Status represents the connection status of a channel.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"`
}

// HealthStatus represents the health check result for an adapter.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Degraded  bool          `json:"degraded,omitempty"`
}

// Registry manages multiple channel adapters, aggregating their inbound
// messages into a single stream and routing outbound replies by channel
// name.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	inbound   map[string]InboundAdapter
	outbound  map[string]OutboundAdapter
	lifecycle map[string]LifecycleAdapter
	health    map[string]HealthAdapter
}

// NewRegistry creates a new, empty channel registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]Adapter),
		inbound:   make(map[string]InboundAdapter),
		outbound:  make(map[string]OutboundAdapter),
		lifecycle: make(map[string]LifecycleAdapter),
		health:    make(map[string]HealthAdapter),
	}
}

// Register adds an adapter to the registry, indexing it under every
// capability interface it additionally satisfies.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	channelType := adapter.Type()
	r.adapters[channelType] = adapter

	if inbound, ok := adapter.(InboundAdapter); ok {
		r.inbound[channelType] = inbound
	}
	if outbound, ok := adapter.(OutboundAdapter); ok {
		r.outbound[channelType] = outbound
	}
	if lifecycle, ok := adapter.(LifecycleAdapter); ok {
		r.lifecycle[channelType] = lifecycle
	}
	if health, ok := adapter.(HealthAdapter); ok {
		r.health[channelType] = health
	}
}

// Get returns an adapter by channel name.
func (r *Registry) Get(channelType string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channelType]
	return adapter, ok
}

// GetOutbound returns the adapter that can deliver a reply on channelType.
func (r *Registry) GetOutbound(channelType string) (OutboundAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.outbound[channelType]
	return adapter, ok
}

// HealthAdapters returns every registered adapter that reports health.
func (r *Registry) HealthAdapters() map[string]HealthAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HealthAdapter, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// Deliver routes msg to the adapter registered for its channel. Returns
// ErrNoAdapter if no outbound adapter is registered for that channel.
func (r *Registry) Deliver(ctx context.Context, msg models.OutboundMessage) error {
	adapter, ok := r.GetOutbound(msg.Channel)
	if !ok {
		return ErrNoAdapter
	}
	return adapter.Send(ctx, msg)
}

// StartAll starts every registered lifecycle adapter, stopping early on
// the first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, adapter := range r.lifecycle {
		if err := adapter.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every registered lifecycle adapter, returning the last
// error encountered (if any) after attempting all of them.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var lastErr error
	for _, adapter := range r.lifecycle {
		if err := adapter.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// AggregateMessages fans every registered adapter's inbound stream into
// one channel, closed once ctx is cancelled or every adapter's stream
// closes.
func (r *Registry) AggregateMessages(ctx context.Context) <-chan models.InboundMessage {
	r.mu.RLock()
	adapters := make([]InboundAdapter, 0, len(r.inbound))
	for _, a := range r.inbound {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	out := make(chan models.InboundMessage)
	var wg sync.WaitGroup
	for _, adapter := range adapters {
		wg.Add(1)
		go func(a InboundAdapter) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-a.Messages():
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(adapter)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
