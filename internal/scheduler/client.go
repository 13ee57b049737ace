package scheduler

import (
	"context"
	"errors"
	"time"

	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/redisconn"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	defaultQueue      = "default"
	assignMaxRetry    = 8
	assignTaskTimeout = 30 * time.Second
	// Completed task IDs are kept this long so late duplicates are ignored.
	assignRetention = time.Hour
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueAssignment queues a lead for assignment and returns the task ID.
// A lead that is already queued returns the existing task ID.
func (c *Client) EnqueueAssignment(ctx context.Context, tenantID, leadID uuid.UUID, origin *string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("scheduler client not configured")
	}

	task, err := NewAssignLeadTask(AssignLeadPayload{
		TenantID: tenantID.String(),
		LeadID:   leadID.String(),
		Origin:   origin,
	})
	if err != nil {
		return "", err
	}

	taskID := assignTaskID(tenantID.String(), leadID.String())
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(assignMaxRetry),
		asynq.Timeout(assignTaskTimeout),
		asynq.Retention(assignRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return taskID, nil
	}
	if err != nil {
		return "", err
	}
	return taskID, nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redisconn.ParseOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return defaultQueue
}
