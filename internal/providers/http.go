package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DoJSON sends a POST request with a JSON payload and returns the response
// body bytes. It handles marshaling, header setting (Content-Type plus any
// caller-supplied headers), trace propagation, and error responses
// (StatusError with Retry-After parsing).
func DoJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) ([]byte, error) {
	ctx, span := otel.Tracer("evalbench.providers").Start(ctx, "provider.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer span.End()

	resp, err := send(ctx, client, url, payload, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response failed")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		se.ParseRetryAfter(resp.Header.Get("Retry-After"))
		span.RecordError(se)
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		return nil, se
	}

	span.SetStatus(codes.Ok, "")
	return body, nil
}

// StreamChunk is one decoded piece of a streamed completion. The sequence is
// finite and non-restartable; the caller accumulates Text and stamps
// time-to-first-token on the first chunk carrying content.
type StreamChunk struct {
	Text         string
	FinishReason string
	// Usage fields are populated on the final chunk when the provider
	// reports them; -1 means not reported.
	PromptTokens     int
	CompletionTokens int
}

// ChunkDecoder turns one SSE data payload into a StreamChunk. Returning
// done=true ends the stream.
type ChunkDecoder func(data []byte) (chunk StreamChunk, done bool, err error)

// DoStream sends a POST request and consumes the SSE response line by line,
// invoking decode for each data event. It returns when the stream ends, the
// decoder signals done, or ctx is cancelled.
func DoStream(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string, decode ChunkDecoder, onChunk func(StreamChunk)) error {
	ctx, span := otel.Tracer("evalbench.providers").Start(ctx, "provider.stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer span.End()

	resp, err := send(ctx, client, url, payload, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			span.SetStatus(codes.Error, "read error response failed")
			return fmt.Errorf("failed to read error response: %w", readErr)
		}
		se := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		se.ParseRetryAfter(resp.Header.Get("Retry-After"))
		span.RecordError(se)
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		return se
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				break
			}
			continue
		}
		chunk, done, err := decode([]byte(data))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode chunk failed")
			return err
		}
		onChunk(chunk)
		if done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream read failed")
		return fmt.Errorf("stream read failed: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// send builds and issues the POST request shared by DoJSON and DoStream.
func send(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	// Propagate W3C trace context (traceparent/tracestate) to the provider.
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// NewHTTPClient returns the http.Client adapters share: no client-level
// timeout (the per-call context deadline governs), with the given transport.
func NewHTTPClient(transport http.RoundTripper) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{Transport: transport, Timeout: 0}
}

// CallDeadline computes the context for one provider call from the target's
// per-call timeout. The executor layers job-level deadlines on top.
func CallDeadline(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	if timeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
}
