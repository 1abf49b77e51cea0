package clustersync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/apitable"
	"mediation-router/internal/common/logging"
	"mediation-router/internal/deployer"
	"mediation-router/internal/redis"
)

const channel = "test:apis"

type node struct {
	deployer *deployer.Deployer
	syncer   *Syncer
}

func newNode(t *testing.T, mr *miniredis.Miniredis, id string) *node {
	t.Helper()
	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	d := deployer.New(apitable.New(logging.NewNopLogger()), logging.NewNopLogger())
	s := New(client, d, id, channel, logging.NewNopLogger())
	d.SetNotifier(s)
	return &node{deployer: d, syncer: s}
}

func (n *node) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.syncer.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	select {
	case <-n.syncer.Ready():
	case err := <-done:
		t.Fatalf("syncer stopped early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("syncer did not subscribe")
	}
}

func definition(name, context string) *deployer.Definition {
	return &deployer.Definition{
		Name:      name,
		Context:   context,
		Resources: []deployer.ResourceDefinition{{Methods: []string{"GET"}}},
	}
}

func TestSyncer_ReplicatesDeployAndUndeploy(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newNode(t, mr, "node-a")
	b := newNode(t, mr, "node-b")
	b.run(t)

	require.NoError(t, a.deployer.Deploy(definition("orders", "/orders")))
	assert.Eventually(t, func() bool {
		_, ok := b.deployer.Table().Get("orders")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.deployer.Undeploy("orders"))
	assert.Eventually(t, func() bool {
		return b.deployer.Table().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncer_AppliedEventsAreNotEchoed(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newNode(t, mr, "node-a")
	b := newNode(t, mr, "node-b")
	a.run(t)
	b.run(t)

	require.NoError(t, a.deployer.Deploy(definition("orders", "/orders")))
	assert.Eventually(t, func() bool {
		_, ok := b.deployer.Table().Get("orders")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// node-a ignores its own event and node-b applied without publishing
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"orders"}, a.deployer.Table().Names())
	keys, err := mr.HKeys(a.syncer.StateKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, keys)
}

func TestSyncer_IgnoresOwnAndMalformedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	n := newNode(t, mr, "node-a")

	own, err := json.Marshal(Event{Type: EventDeploy, Node: "node-a", Name: "x", Definition: definition("x", "/x")})
	require.NoError(t, err)
	n.syncer.handle(string(own))
	n.syncer.handle("{not json")
	n.syncer.handle(`{"type":"deploy","node":"node-b","name":"y"}`)
	n.syncer.handle(`{"type":"rename","node":"node-b","name":"y"}`)
	assert.Zero(t, n.deployer.Table().Len())

	remote, err := json.Marshal(Event{Type: EventDeploy, Node: "node-b", Name: "x", Definition: definition("x", "/x")})
	require.NoError(t, err)
	n.syncer.handle(string(remote))
	assert.Equal(t, []string{"x"}, n.deployer.Table().Names())

	n.syncer.handle(`{"type":"undeploy","node":"node-b","name":"missing"}`)
	n.syncer.handle(`{"type":"undeploy","node":"node-b","name":"x"}`)
	assert.Zero(t, n.deployer.Table().Len())
}

func TestSyncer_Bootstrap(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newNode(t, mr, "node-a")
	require.NoError(t, a.deployer.Deploy(definition("orders", "/orders")))
	require.NoError(t, a.deployer.Deploy(definition("users", "/users")))
	require.NoError(t, a.deployer.Deploy(definition("gone", "/gone")))
	require.NoError(t, a.deployer.Undeploy("gone"))
	mr.HSet(a.syncer.StateKey(), "corrupt", "{")

	late := newNode(t, mr, "node-late")
	applied, err := late.syncer.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.ElementsMatch(t, []string{"orders", "users"}, late.deployer.Table().Names())
}

func TestSyncer_BootstrapUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	n := newNode(t, mr, "node-a")
	mr.Close()

	_, err := n.syncer.Bootstrap(context.Background())
	assert.Error(t, err)
}
