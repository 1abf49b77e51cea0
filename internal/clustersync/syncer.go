// Package clustersync replicates API deployments between gateway nodes over
// Redis. Local changes are published as events and recorded in a hash so that
// nodes joining later can catch up; events from other nodes are applied to the
// local deployer.
package clustersync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
	"mediation-router/internal/deployer"
	"mediation-router/internal/redis"
)

// EventType is the kind of change carried by an Event
type EventType string

const (
	EventDeploy   EventType = "deploy"
	EventUndeploy EventType = "undeploy"
)

// Event is the message published for every local deployment change
type Event struct {
	Type       EventType            `json:"type"`
	Node       string               `json:"node"`
	Name       string               `json:"name"`
	Definition *deployer.Definition `json:"definition,omitempty"`
}

// Applier applies remote changes without re-publishing them
type Applier interface {
	Apply(def *deployer.Definition) error
	ApplyUndeploy(name string) error
}

// Syncer publishes local changes and applies remote ones. It implements
// deployer.Notifier.
type Syncer struct {
	client  *redis.Client
	applier Applier
	node    string
	channel string
	logger  logging.Logger
	timeout time.Duration

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a syncer for node on channel. The current definitions are kept
// in the hash "<channel>:definitions".
func New(client *redis.Client, applier Applier, node, channel string, logger logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Syncer{
		client:  client,
		applier: applier,
		node:    node,
		channel: channel,
		logger: logger.WithFields(
			logging.Field{Key: "component", Value: "clustersync"},
			logging.Field{Key: "node", Value: node},
		),
		timeout: 5 * time.Second,
		ready:   make(chan struct{}),
	}
}

// StateKey returns the hash holding the cluster's current definitions
func (s *Syncer) StateKey() string {
	return s.channel + ":definitions"
}

// Ready is closed once Run has subscribed to the channel
func (s *Syncer) Ready() <-chan struct{} {
	return s.ready
}

// Deployed publishes a deploy event and records the definition
func (s *Syncer) Deployed(def *deployer.Definition) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.HSet(ctx, s.StateKey(), def.Name, def); err != nil {
		s.logger.Error("Failed to record definition", err, logging.String("api", def.Name))
	}
	s.publish(ctx, Event{Type: EventDeploy, Node: s.node, Name: def.Name, Definition: def})
}

// Undeployed publishes an undeploy event and forgets the definition
func (s *Syncer) Undeployed(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.HDel(ctx, s.StateKey(), name); err != nil {
		s.logger.Error("Failed to forget definition", err, logging.String("api", name))
	}
	s.publish(ctx, Event{Type: EventUndeploy, Node: s.node, Name: name})
}

func (s *Syncer) publish(ctx context.Context, event Event) {
	if err := s.client.Publish(ctx, s.channel, event); err != nil {
		s.logger.Error("Failed to publish deployment event", err,
			logging.String("type", string(event.Type)),
			logging.String("api", event.Name),
		)
	}
}

// Bootstrap applies every definition recorded by the cluster. Invalid entries
// are logged and skipped. It returns the number of definitions applied.
func (s *Syncer) Bootstrap(ctx context.Context) (int, error) {
	entries, err := s.client.HGetAll(ctx, s.StateKey())
	if err != nil {
		return 0, errors.ConnectionError("failed to read cluster definitions", err).
			WithContext("key", s.StateKey())
	}

	applied := 0
	for name, payload := range entries {
		var def deployer.Definition
		if err := json.Unmarshal([]byte(payload), &def); err != nil {
			s.logger.Warn("Skipping undecodable cluster definition",
				logging.String("api", name),
				logging.Err(err),
			)
			continue
		}
		if err := s.applier.Apply(&def); err != nil {
			s.logger.Warn("Skipping cluster definition",
				logging.String("api", name),
				logging.Err(err),
			)
			continue
		}
		applied++
	}

	s.logger.Info("Bootstrapped cluster definitions", logging.Int("applied", applied))
	return applied, nil
}

// Run subscribes to the channel and applies events from other nodes until ctx
// is done
func (s *Syncer) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.ConnectionError("failed to subscribe to cluster channel", err).
			WithContext("channel", s.channel)
	}
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("Cluster sync subscribed", logging.String("channel", s.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *Syncer) handle(payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("Ignoring malformed deployment event", logging.Err(err))
		return
	}
	if event.Node == s.node {
		return
	}

	fields := []logging.Field{
		logging.String("from", event.Node),
		logging.String("api", event.Name),
	}

	var err error
	switch event.Type {
	case EventDeploy:
		if event.Definition == nil {
			s.logger.Warn("Ignoring deploy event without definition", fields...)
			return
		}
		err = s.applier.Apply(event.Definition)
	case EventUndeploy:
		err = s.applier.ApplyUndeploy(event.Name)
		if errors.IsType(err, errors.ErrTypeNotFound) {
			err = nil
		}
	default:
		s.logger.Warn("Ignoring unknown deployment event", append(fields, logging.String("type", string(event.Type)))...)
		return
	}

	if err != nil {
		s.logger.Error("Failed to apply remote deployment", err, fields...)
		return
	}
	s.logger.Debug("Applied remote deployment", append(fields, logging.String("type", string(event.Type)))...)
}
