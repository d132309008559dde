// Package pubsub wraps the Pub/Sub v2 client with the rewards engine's
// configured topic and subscription.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

// Client hands out publishers and subscribers for one GCP project.
// Publishers are cached per topic and flushed on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and verifies that the configured rewards topic and
// orders subscription exist. Either may be left empty by binaries that do not
// use it.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	raw, err := pubsub.NewClient(ctx, projectID, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: projectID, cfg: cfg, publishers: map[string]*pubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub client initialized")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping checks that the configured resources are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	if topic := strings.TrimSpace(c.cfg.RewardsTopic); topic != "" {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resourceName(c.projectID, "topics", topic)})
		if err := describeLookup("topic", topic, err); err != nil {
			return err
		}
	}
	if sub := strings.TrimSpace(c.cfg.OrdersSubscription); sub != "" {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: resourceName(c.projectID, "subscriptions", sub)})
		if err := describeLookup("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking pubsub %s %q: %w", kind, name, err)
	}
}

// OrdersSubscription returns the subscriber for inbound order lifecycle
// messages, or nil when none is configured.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(c.cfg.OrdersSubscription) == "" {
		return nil
	}
	return c.client.Subscriber(resourceName(c.projectID, "subscriptions", c.cfg.OrdersSubscription))
}

// Publisher returns the shared publisher for topic, an ID or a full resource
// name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(topic) == "" {
		return nil
	}
	name := resourceName(c.projectID, "topics", topic)
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	c.publishers[name] = p
	return p
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands an ID to projects/<project>/<kind>/<id> and leaves
// full resource names untouched.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
