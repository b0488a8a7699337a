// Package strava is the activity source: a thin client for the athlete activity
// listing and per-activity stream endpoints of the Strava v3 API.
package strava

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/stravagpx/internal/activity"
	"github.com/hpungsan/stravagpx/internal/errors"
	"github.com/hpungsan/stravagpx/internal/ratelimit"
)

// DefaultPageSize is the number of activities requested per page.
const DefaultPageSize = 100

// maxFaultBytes bounds how much of an error body is read.
const maxFaultBytes = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL  string // e.g. https://www.strava.com/api/v3
	PageSize int
}

// Client talks to the remote activity API. Authorization is the job of the
// supplied http.Client (see auth.TokenSource); every call is paced by the limiter.
type Client struct {
	http     *http.Client
	baseURL  string
	pageSize int
	limiter  *ratelimit.Limiter
	log      zerolog.Logger
}

// NewClient creates a Client.
func NewClient(httpClient *http.Client, opts Options, limiter *ratelimit.Limiter, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		pageSize: pageSize,
		limiter:  limiter,
		log:      log,
	}
}

// ListActivities returns one page (1-based) of the athlete's activities, newest first.
// An empty slice means the listing is exhausted.
func (c *Client) ListActivities(ctx context.Context, page int) ([]activity.Activity, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(page))

	op := fmt.Sprintf("list activities page %d", page)
	var activities []activity.Activity
	if err := c.get(ctx, op, "/athlete/activities", q, &activities); err != nil {
		return nil, err
	}

	c.log.Debug().Int("page", page).Int("count", len(activities)).Msg("listed activities")
	return activities, nil
}

// Streams fetches every known stream kind of an activity.
// Returns a NOT_FOUND error when the activity has no stream data.
func (c *Client) Streams(ctx context.Context, id int64) (*activity.StreamBundle, error) {
	q := url.Values{}
	q.Set("keys", strings.Join(activity.StreamKinds, ","))

	op := fmt.Sprintf("get activity %d streams", id)
	var raw []rawStream
	if err := c.get(ctx, op, fmt.Sprintf("/activities/%d/streams", id), q, &raw); err != nil {
		return nil, err
	}

	bundle, err := decodeStreams(raw)
	if err != nil {
		return nil, errors.NewRemote(http.StatusOK, op, err.Error())
	}
	return bundle, nil
}

// get performs a paced GET and decodes a JSON response into out.
func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.NewCancelled(op)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The token source reports refresh failures as typed errors through the transport
		var eErr *errors.ExportError
		if stderrors.As(err, &eErr) {
			return eErr
		}
		if ctx.Err() != nil {
			return errors.NewCancelled(op)
		}
		return errors.NewTransport(op, err)
	}
	defer resp.Body.Close()

	c.syncLimiter(resp.Header)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewNotFound(op)
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.NewUnauthorized(fmt.Sprintf("%s: %s", op, faultMessage(resp.Body)))
	default:
		return errors.NewRemote(resp.StatusCode, op, faultMessage(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewRemote(resp.StatusCode, op, fmt.Sprintf("invalid response body: %v", err))
	}
	return nil
}

func (c *Client) syncLimiter(h http.Header) {
	usage := h.Get("X-RateLimit-Usage")
	if usage == "" || c.limiter == nil {
		return
	}
	short, long, err := ratelimit.ParseUsage(usage)
	if err != nil {
		c.log.Debug().Err(err).Msg("ignoring rate limit header")
		return
	}
	c.limiter.Sync(short, long)
}

// fault is the error body returned by the API.
type fault struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
	} `json:"errors"`
}

// faultMessage extracts a readable message from an error body.
func faultMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxFaultBytes))
	if err != nil || len(data) == 0 {
		return "no response body"
	}

	var f fault
	if err := json.Unmarshal(data, &f); err != nil || f.Message == "" {
		return strings.TrimSpace(string(data))
	}

	msg := f.Message
	for _, e := range f.Errors {
		msg += fmt.Sprintf(" (%s %s %s)", e.Resource, e.Field, e.Code)
	}
	return msg
}
