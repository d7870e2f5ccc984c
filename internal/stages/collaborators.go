package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config keys naming the collaborator service endpoints.
const (
	KeyScriptEndpoint  = "script_endpoint"
	KeyImageEndpoint   = "image_endpoint"
	KeyComposeEndpoint = "compose_endpoint"
	KeyPublishEndpoint = "publish_endpoint"
)

// FromConfig wires the pipeline to the collaborator services named in the
// saved configuration. Their request internals are opaque here; each is one
// JSON call returning a result string.
func FromConfig(cfg map[string]string) *Pipeline {
	client := &http.Client{Timeout: 2 * time.Minute}
	return &Pipeline{
		Writer:     &remoteWriter{remote{client, cfg[KeyScriptEndpoint], "script"}},
		Renderer:   &remoteRenderer{remote{client, cfg[KeyImageEndpoint], "image"}},
		Compositor: &remoteCompositor{remote{client, cfg[KeyComposeEndpoint], "compose"}},
		Publisher:  &remotePublisher{remote{client, cfg[KeyPublishEndpoint], "publish"}},
	}
}

// remote is one collaborator service reachable over HTTP.
type remote struct {
	client   *http.Client
	endpoint string
	name     string
}

type remoteResult struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func (r remote) call(ctx context.Context, payload any) (string, error) {
	if r.endpoint == "" {
		return "", fmt.Errorf("%s endpoint not configured", r.name)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", r.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s request: %w", r.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s call: %w", r.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s response: %w", r.name, err)
	}
	var out remoteResult
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%s response: %w", r.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return "", fmt.Errorf("%s failed: %s", r.name, out.Error)
		}
		return "", fmt.Errorf("%s failed with status %d", r.name, resp.StatusCode)
	}
	return out.Result, nil
}

type remoteWriter struct{ remote }

func (w *remoteWriter) Write(ctx context.Context, idea string) (string, error) {
	return w.call(ctx, map[string]string{"idea": idea})
}

type remoteRenderer struct{ remote }

func (r *remoteRenderer) Render(ctx context.Context, prompt string) (string, error) {
	return r.call(ctx, map[string]string{"prompt": prompt})
}

type remoteCompositor struct{ remote }

func (c *remoteCompositor) Compose(ctx context.Context, image, caption string) (string, error) {
	return c.call(ctx, map[string]string{"image": image, "caption": caption})
}

type remotePublisher struct{ remote }

func (p *remotePublisher) Publish(ctx context.Context, post Post) (string, error) {
	return p.call(ctx, map[string]string{"media": post.Media, "caption": post.Caption})
}

func (p *remotePublisher) Schedule(ctx context.Context, post Post, at time.Time) (string, error) {
	return p.call(ctx, map[string]string{
		"media":   post.Media,
		"caption": post.Caption,
		"publish": at.UTC().Format(time.RFC3339),
	})
}
