package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

// Client wraps a Pub/Sub v2 client scoped to one project.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub inventory topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// NewClient connects and fails fast when the inventory topic or its
// subscription is missing. PUBSUB_EMULATOR_HOST is honoured by the SDK.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.InventoryTopic) == "" {
		return nil, errTopicRequired
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	raw, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":      projectID,
			"topic":        cfg.InventoryTopic,
			"subscription": cfg.InventorySubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping checks that the inventory topic, and its subscription when one is
// configured, exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	if err := c.VerifyTopics(ctx, c.cfg.InventoryTopic); err != nil {
		return err
	}
	sub := strings.TrimSpace(c.cfg.InventorySubscription)
	if sub == "" {
		return nil
	}
	return checkExists("subscription", sub, SubscriptionResourceName(c.projectID, sub), func(name string) error {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		return err
	})
}

// VerifyTopics checks every topic concurrently and reports the first missing one.
func (c *Client) VerifyTopics(ctx context.Context, topics ...string) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error {
			return checkExists("topic", topic, TopicResourceName(c.projectID, topic), func(name string) error {
				_, err := c.client.TopicAdminClient.GetTopic(gctx, &pubsubpb.GetTopicRequest{Topic: name})
				return err
			})
		})
	}
	return g.Wait()
}

// checkExists runs get against the full resource name. A gRPC NotFound
// means the resource was never provisioned.
func checkExists(kind, name, fullName string, get func(string) error) error {
	if fullName == "" {
		return fmt.Errorf("%s %q not configured", kind, name)
	}
	err := get(fullName)
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Publisher returns a handle for topic, given as an id or a full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := TopicResourceName(c.projectID, topic)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func SubscriptionResourceName(projectID, name string) string {
	return resourceName(projectID, name, "subscriptions")
}

func TopicResourceName(projectID, name string) string {
	return resourceName(projectID, name, "topics")
}

// resourceName expands an id to projects/<project>/<collection>/<id>. Full
// names pass through; a blank id or project yields "".
func resourceName(projectID, name, collection string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+collection+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/" + collection + "/" + n
}
