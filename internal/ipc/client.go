package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Stop requests the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Sublingo.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Sublingo.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskList returns tasks optionally filtered by stage names.
func (c *Client) TaskList(stages []string) (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.client.Call("Sublingo.TaskList", TaskListRequest{Stages: stages}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskDescribe returns details for a single task.
func (c *Client) TaskDescribe(id string) (*TaskDescribeResponse, error) {
	var resp TaskDescribeResponse
	if err := c.client.Call("Sublingo.TaskDescribe", TaskDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskAdd enqueues one chunk task.
func (c *Client) TaskAdd(req TaskAddRequest) (*TaskAddResponse, error) {
	var resp TaskAddResponse
	if err := c.client.Call("Sublingo.TaskAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoPlan enqueues one task per chunk of a whole video.
func (c *Client) VideoPlan(userRef, videoPath string) (*VideoPlanResponse, error) {
	var resp VideoPlanResponse
	req := VideoPlanRequest{UserRef: userRef, VideoPath: videoPath}
	if err := c.client.Call("Sublingo.VideoPlan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskRetry requeues a failed or stalled task.
func (c *Client) TaskRetry(id string) (*TaskRetryResponse, error) {
	var resp TaskRetryResponse
	if err := c.client.Call("Sublingo.TaskRetry", TaskRetryRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskCancel requests cooperative cancellation of a task.
func (c *Client) TaskCancel(id string) (*TaskCancelResponse, error) {
	var resp TaskCancelResponse
	if err := c.client.Call("Sublingo.TaskCancel", TaskCancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskClearCompleted removes completed tasks.
func (c *Client) TaskClearCompleted() (*TaskClearCompletedResponse, error) {
	var resp TaskClearCompletedResponse
	if err := c.client.Call("Sublingo.TaskClearCompleted", TaskClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Sublingo.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Sublingo.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Sublingo.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
