package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dataset-review/internal/platform/httpclient"
	"dataset-review/internal/ports/notify"
)

var ErrNotConfigured = errors.New("webhook sink not configured")

type Config struct {
	URL    string
	Secret string // opcional; va en X-Webhook-Secret

	Timeout time.Duration
}

// Sink publica eventos de delegación vía POST JSON a un webhook.
// El que llama decide si el error importa; acá no se reintenta.
type Sink struct {
	url    string
	secret string
	client *httpclient.Client
}

func NewSink(cfg Config) *Sink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{
		url:    strings.TrimSpace(cfg.URL),
		secret: strings.TrimSpace(cfg.Secret),
		client: httpclient.New(timeout),
	}
}

func (s *Sink) IsConfigured() bool {
	return s != nil && s.url != ""
}

func (s *Sink) Emit(ctx context.Context, ev notify.Event) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	var headers map[string]string
	if s.secret != "" {
		headers = map[string]string{"X-Webhook-Secret": s.secret}
	}
	return s.client.DoJSON(ctx, http.MethodPost, s.url, headers, ev, nil)
}
