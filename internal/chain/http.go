package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whaleScope/internal/retry"
)

const maxErrorBody = 256

// restClient is a rate-limited resty client whose calls run under the retry
// policy. Every attempt waits on the limiter first.
type restClient struct {
	http    *resty.Client
	limiter *rate.Limiter
	policy  retry.Policy
	logger  *zap.Logger
}

func newRESTClient(baseURL string, opts Options) *restClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	return &restClient{
		http:    client,
		limiter: opts.limiter(),
		policy:  opts.Retry,
		logger:  opts.Logger,
	}
}

// getJSON issues GET path with query and decodes the body into out.
func (c *restClient) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.http.R().SetContext(ctx).SetQueryParams(query).Get(path)
		if err != nil {
			return fmt.Errorf("get %s: %w", path, err)
		}
		return decodeResponse(resp, out)
	})
}

// postJSON issues POST path with a JSON body and decodes the reply into out.
func (c *restClient) postJSON(ctx context.Context, path string, body, out any) error {
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(path)
		if err != nil {
			return fmt.Errorf("post %s: %w", path, err)
		}
		return decodeResponse(resp, out)
	})
}

func decodeResponse(resp *resty.Response, out any) error {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", resp.Request.URL, ErrRateLimited)
	}
	if !resp.IsSuccess() {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{Code: resp.StatusCode(), Body: body}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if v, ok := out.(validator); ok {
		return v.validate()
	}
	return nil
}

// validator is implemented by response envelopes that carry an in-band error.
type validator interface {
	validate() error
}
