// Package persistence defines the contracts the mapper consumes from a
// document store and publishes model lifecycle events to listeners and
// subscribers.
package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Dispatcher publishes model lifecycle events. Listeners registered with
// Listen run synchronously and may cancel halting events; subscriptions
// registered with RegisterSubscription observe every event through the
// event bus and cannot influence the operation.
type Dispatcher struct {
	mu            sync.RWMutex
	listeners     map[PersistenceEventType][]EventCallbackFunction
	subscriptions map[string]*SubscriptionInfo // To store unsubscribe functions
	subMu         sync.RWMutex                 // Mutex to protect subscriptions map
	bus           *events.TypedEventBus[PersistenceEvent]
	logger        *zap.Logger
}

// NewDispatcher creates a dispatcher backed by a typed event bus.
func NewDispatcher(logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := events.NewTypedEventBus[PersistenceEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	return &Dispatcher{
		listeners:     make(map[PersistenceEventType][]EventCallbackFunction),
		subscriptions: make(map[string]*SubscriptionInfo),
		bus:           bus,
		logger:        logger,
	}, nil
}

// Listen registers a synchronous listener for an event.
func (d *Dispatcher) Listen(event PersistenceEventType, callback EventCallbackFunction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[event] = append(d.listeners[event], callback)
}

// Fire runs the listeners for event.Type in registration order and reports
// whether the operation may proceed. For halting events the first listener
// error stops the chain and yields false. Non-halting events run every
// listener; their errors are aggregated, logged and yield false. The event is
// published to subscribers in either case.
func (d *Dispatcher) Fire(ctx context.Context, event PersistenceEvent) bool {
	d.mu.RLock()
	listeners := append([]EventCallbackFunction(nil), d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs *multierror.Error
	for _, listener := range listeners {
		if err := listener(ctx, event); err != nil {
			if event.Halting {
				d.logger.Debug("Listener cancelled operation",
					zap.String("event", string(event.Type)),
					zap.Error(err))
				d.publish(event, err)
				return false
			}
			errs = multierror.Append(errs, err)
		}
	}

	err := errs.ErrorOrNil()
	if err != nil {
		d.logger.Warn("Event listeners failed",
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
	d.publish(event, err)
	return err == nil
}

func (d *Dispatcher) publish(event PersistenceEvent, err error) {
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	d.bus.Emit(string(event.Type), event)
}

// RegisterSubscription registers a callback for a specific persistence event. It returns
// a unique ID that can be used to unregister the subscription later.
func (d *Dispatcher) RegisterSubscription(options RegisterSubscriptionOptions) string {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	unsubscribe := d.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	d.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (d *Dispatcher) UnregisterSubscription(id string) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	if info, ok := d.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(d.subscriptions, id)
	}
}

// Subscriptions returns a list of all currently active subscriptions.
func (d *Dispatcher) Subscriptions() []SubscriptionInfo {
	d.subMu.RLock()
	defer d.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(d.subscriptions))
	for _, sub := range d.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
