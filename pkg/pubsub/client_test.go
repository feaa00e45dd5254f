package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlane-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, topic, want string
	}{
		{"farmlane-prod", "order-notifications", "projects/farmlane-prod/topics/order-notifications"},
		{"farmlane-prod", " order-notifications ", "projects/farmlane-prod/topics/order-notifications"},
		{"farmlane-prod", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "order-notifications", ""},
		{"farmlane-prod", "  ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, topicResourceName(tc.project, tc.topic), "project=%q topic=%q", tc.project, tc.topic)
	}
}

func TestNewClientValidatesInputsBeforeDialing(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.GCPConfig{}, []string{"order-notifications"}, nil)
	require.ErrorIs(t, err, ErrProjectIDRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "farmlane-prod"}, []string{" ", ""}, nil)
	require.ErrorIs(t, err, ErrNoTopics)
}

func TestUnopenedClientIsInert(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("order-notifications"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
