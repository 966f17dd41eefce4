package asana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	retry "github.com/avast/retry-go"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://app.asana.com/api/1.0"

// taskOptFields selects everything the pipeline needs in a single request,
// including the concrete custom-field values.
const taskOptFields = "name,completed,completed_at,created_at,modified_at,due_on," +
	"assignee.name,num_subtasks,tags.name,memberships.section.name," +
	"custom_fields.name,custom_fields.number_value,custom_fields.text_value,custom_fields.display_value"

const pageLimit = 100

// Client talks to the Asana API. It is constructed once per run and passed
// by parameter; there is no package-level client state.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	workspaceID string

	// Asana allows 150 requests/min; stay politely under it.
	limiter *rate.Limiter

	retryAttempts uint
	retryDelay    time.Duration
}

// NewClient creates an authenticated API client for one workspace.
func NewClient(token, workspaceID string) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       defaultBaseURL,
		token:         token,
		workspaceID:   workspaceID,
		limiter:       rate.NewLimiter(rate.Limit(2), 1),
		retryAttempts: 5,
		retryDelay:    time.Second,
	}
}

// Projects lists the non-archived projects of the workspace.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	query := url.Values{}
	query.Set("workspace", c.workspaceID)
	query.Set("archived", "false")
	query.Set("opt_fields", "name,archived")

	var out []Project
	err := c.paginate(ctx, "/projects", query, func(data json.RawMessage) error {
		var page []Project
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		for _, p := range page {
			if p.Archived {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// TasksByProject lists tasks of a project completed since the given time.
// Completion filtering of the result is left to the caller: the API also
// returns still-open tasks whose parents match.
func (c *Client) TasksByProject(ctx context.Context, projectGID string, completedSince time.Time) ([]Task, error) {
	query := url.Values{}
	query.Set("project", projectGID)
	query.Set("completed_since", completedSince.UTC().Format(time.RFC3339))
	query.Set("opt_fields", taskOptFields)
	return c.listTasks(ctx, "/tasks", query)
}

// OpenTasks lists the currently incomplete tasks of a project.
// completed_since=now is the documented way to ask Asana for open tasks only.
func (c *Client) OpenTasks(ctx context.Context, projectGID string) ([]Task, error) {
	query := url.Values{}
	query.Set("project", projectGID)
	query.Set("completed_since", "now")
	query.Set("opt_fields", taskOptFields)
	return c.listTasks(ctx, "/tasks", query)
}

// Subtasks lists the subtasks of a parent task.
func (c *Client) Subtasks(ctx context.Context, taskGID string) ([]Task, error) {
	query := url.Values{}
	query.Set("opt_fields", taskOptFields)
	return c.listTasks(ctx, "/tasks/"+taskGID+"/subtasks", query)
}

func (c *Client) listTasks(ctx context.Context, path string, query url.Values) ([]Task, error) {
	var out []Task
	err := c.paginate(ctx, path, query, func(data json.RawMessage) error {
		var page []Task
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	return out, err
}

// paginate walks the offset-based pagination envelope, feeding each page's
// data array to collect.
func (c *Client) paginate(ctx context.Context, path string, query url.Values, collect func(json.RawMessage) error) error {
	query.Set("limit", strconv.Itoa(pageLimit))
	offset := ""
	for {
		if offset != "" {
			query.Set("offset", offset)
		}
		var envelope struct {
			Data     json.RawMessage `json:"data"`
			NextPage *struct {
				Offset string `json:"offset"`
			} `json:"next_page"`
		}
		if err := c.getJSON(ctx, path, query, &envelope); err != nil {
			return err
		}
		if err := collect(envelope.Data); err != nil {
			return err
		}
		if envelope.NextPage == nil || envelope.NextPage.Offset == "" {
			return nil
		}
		offset = envelope.NextPage.Offset
	}
}

// getJSON performs one GET with the centralized retry policy: bounded
// attempts, exponential backoff capped at 30s, Retry-After honored.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return retry.Do(
		func() error {
			return c.doRequest(ctx, path, query, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransient),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				return apiErr.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: retryAfter(resp),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("asana: decode %s: %w", path, err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
