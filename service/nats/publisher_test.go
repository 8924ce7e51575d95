package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/tzwriter/service/db"
)

func TestFromOperationGroup(t *testing.T) {
	wf := "submit-tz1abc-1"
	created := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	event := FromOperationGroup(&db.OperationGroup{
		Hash:       "ooHash",
		GroupID:    "\"ooHash\"\n",
		Source:     "tz1abc",
		Network:    "mainnet",
		Kinds:      []string{"reveal", "transaction"},
		Counters:   []int64{6, 7},
		WorkflowID: &wf,
		CreatedAt:  created,
	})

	assert.Equal(t, "ops.tz1abc", event.Subject())
	assert.Equal(t, created, event.InjectedAt)
	assert.False(t, event.PublishedAt.IsZero())

	data, err := json.Marshal(event)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ooHash", decoded["hash"])
	assert.Equal(t, "tz1abc", decoded["source"])
	assert.Equal(t, "submit-tz1abc-1", decoded["workflow_id"])
	assert.Equal(t, []any{"reveal", "transaction"}, decoded["kinds"])
}

func TestFromOperationGroup_Activation(t *testing.T) {
	event := FromOperationGroup(&db.OperationGroup{
		Hash:     "ooHash",
		Source:   "tz1abc",
		Kinds:    []string{"activate_account"},
		Counters: []int64{},
	})
	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "counters")
	assert.NotContains(t, string(data), "workflow_id")
}

func TestStreamConfig(t *testing.T) {
	cfg := StreamConfig()
	assert.Equal(t, "OPERATIONS", cfg.Name)
	assert.Equal(t, []string{"ops.*"}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
	assert.Equal(t, StreamRetention, cfg.MaxAge)
}

func TestMockPublisher(t *testing.T) {
	var p Publisher = NewMockPublisher()
	mock := p.(*MockPublisher)
	ctx := context.Background()

	require.NoError(t, p.PublishOperation(ctx, &OperationEvent{Hash: "oo1", Source: "tz1a"}))
	require.NoError(t, p.PublishOperation(ctx, &OperationEvent{Hash: "oo2", Source: "tz1b"}))
	assert.Len(t, mock.GetPublishedEvents(), 2)
	assert.Len(t, mock.GetPublishedEventsForSource("tz1a"), 1)

	mock.SetPublishError(errors.New("nats down"))
	assert.Error(t, p.PublishOperation(ctx, &OperationEvent{Hash: "oo3", Source: "tz1a"}))
	assert.Len(t, mock.GetPublishedEvents(), 2)

	require.NoError(t, p.Close())
	assert.True(t, mock.IsClosed())
}
