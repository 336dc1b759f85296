package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when the service produced no text
var ErrEmptyResponse = errors.New("empty response from model")

// Request is one call to the text-generation service
type Request struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// Generation is the generated text plus the token counts reported by the service
type Generation struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, req Request) (Generation, error)
}

// OllamaLLM handles interactions with the Ollama generate API
type OllamaLLM struct {
	Client      *api.Client
	MaxRetries  int
	Timeout     time.Duration
	Temperature float64
	Limiter     *rate.Limiter
	Logger      *slog.Logger
}

// NewOllamaLLM creates a new Ollama client. An empty host falls back to OLLAMA_HOST.
func NewOllamaLLM(host string, requestsPerSecond float64) (*OllamaLLM, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ollama host %q: %w", host, err)
		}
		hostURL = u
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &OllamaLLM{
		Client:      api.NewClient(hostURL, http.DefaultClient),
		MaxRetries:  1,
		Timeout:     2 * time.Minute,
		Temperature: 0.1,
		Limiter:     rate.NewLimiter(limit, 1),
		Logger:      slog.Default(),
	}, nil
}

// Generate sends the prompt, retrying transport failures up to MaxRetries times.
// Each attempt is bounded by Timeout.
func (o *OllamaLLM) Generate(ctx context.Context, req Request) (Generation, error) {
	var gen Generation
	var err error

	for retries := 0; retries <= o.MaxRetries; retries++ {
		if retries > 0 {
			o.logger().Warn("retrying generate", "model", req.Model, "attempt", retries, "err", err)
			select {
			case <-ctx.Done():
				return Generation{}, ctx.Err()
			case <-time.After(time.Duration(retries) * time.Second):
			}
		}

		gen, err = o.generate(ctx, req)
		if err == nil {
			return gen, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return Generation{}, fmt.Errorf("failed to generate response after %d retries: %w", o.MaxRetries, err)
}

func (o *OllamaLLM) generate(ctx context.Context, req Request) (Generation, error) {
	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			return Generation{}, err
		}
	}

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	stream := false
	options := map[string]interface{}{
		"temperature": o.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	genReq := api.GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: options,
	}

	var responseBuilder strings.Builder
	gen := Generation{Model: req.Model}

	err := o.Client.Generate(ctx, &genReq, func(resp api.GenerateResponse) error {
		responseBuilder.WriteString(resp.Response)
		if resp.Done {
			gen.InputTokens = resp.PromptEvalCount
			gen.OutputTokens = resp.EvalCount
			if resp.Model != "" {
				gen.Model = resp.Model
			}
		}
		return nil
	})
	if err != nil {
		return Generation{}, fmt.Errorf("failed to generate response: %w", err)
	}

	gen.Text = responseBuilder.String()
	if strings.TrimSpace(gen.Text) == "" {
		return Generation{}, ErrEmptyResponse
	}
	return gen, nil
}

func (o *OllamaLLM) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
