// Package pubsub holds the Pub/Sub v2 connection the outbox publisher fans
// events out through.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
)

var (
	ErrProjectIDRequired = errors.New("gcp project id is required")
	ErrNoTopics          = errors.New("at least one pubsub topic is required")
	ErrClosed            = errors.New("pubsub client closed")
)

// Client verifies its topics up front and hands out one ordered publisher
// per topic. Close flushes and stops every publisher it handed out.
type Client struct {
	conn      *gcppubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
	closed     bool
}

// NewClient connects and fails unless every topic already exists. Topics
// are provisioned out of band, never created here.
func NewClient(ctx context.Context, gcp config.GCPConfig, topics []string, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		if name := topicResourceName(projectID, topic); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoTopics
	}

	conn, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		conn:       conn,
		projectID:  projectID,
		topics:     names,
		publishers: map[string]*gcppubsub.Publisher{},
	}
	if err := c.checkTopics(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"topics": names}), "pubsub client initialized")
	}
	return c, nil
}

// checkTopics reports every missing topic, not just the first.
func (c *Client) checkTopics(ctx context.Context) error {
	var errs []error
	for _, name := range c.topics {
		_, err := c.conn.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = append(errs, fmt.Errorf("topic %s does not exist", name))
		default:
			errs = append(errs, fmt.Errorf("checking topic %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Publisher returns the ordered publisher for a topic id or full resource
// name, or nil when the name is blank or the client is closed.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	if c == nil || c.conn == nil {
		return nil
	}
	name := topicResourceName(c.projectID, topic)
	if name == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.conn.Publisher(name)
	p.EnableMessageOrdering = true
	c.publishers[name] = p
	return p
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("pubsub client not initialized")
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.checkTopics(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	publishers := c.publishers
	c.publishers = nil
	c.mu.Unlock()

	// Stop blocks until buffered messages are sent.
	for _, p := range publishers {
		p.Stop()
	}
	return c.conn.Close()
}

// topicResourceName expands a bare topic id under the project. Full
// resource names pass through untouched.
func topicResourceName(projectID, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	if projectID = strings.TrimSpace(projectID); projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + topic
}
