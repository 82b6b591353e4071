package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/agentshub/internal/logging"
	"github.com/agentshub/internal/retry"
)

// ResilientClient wraps a langchaingo model with retry logic, timeout handling and run logging
type ResilientClient struct {
	model       llms.Model
	modelName   string
	retryConfig retry.RetryConfig
	eventSink   EventSink
}

// EventSink receives resiliency events. The metrics package provides the
// Prometheus-backed implementation.
type EventSink interface {
	OnRetry(model string, attempt int, reason string)
	OnTimeout(model string, configured, actual time.Duration)
	OnJSONRepair(model string, stats JsonRepairStats)
	OnCompletion(model string, duration time.Duration, err error)
}

// NewResilientClient creates a new resilient model wrapper. eventSink may be nil.
func NewResilientClient(model llms.Model, modelName string, config retry.RetryConfig, eventSink EventSink) *ResilientClient {
	return &ResilientClient{
		model:       model,
		modelName:   modelName,
		retryConfig: config,
		eventSink:   eventSink,
	}
}

// ResilientRequest is one model call with its resiliency context
type ResilientRequest struct {
	Step     string
	Messages []llms.MessageContent
	Options  []llms.CallOption
	Timeout  time.Duration
}

// ResilientResponse represents a response with resiliency information
type ResilientResponse struct {
	Text          string
	Success       bool
	AttemptsMade  int
	TotalDuration time.Duration
	JsonRepaired  bool
	RepairStats   *JsonRepairStats
	RetryReasons  []string
	Err           error
}

// PromptRequest builds a request holding an optional system message and a single human turn.
func PromptRequest(step, system, prompt string) ResilientRequest {
	var msgs []llms.MessageContent
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
	return ResilientRequest{Step: step, Messages: msgs}
}

// Generate runs the request through the model, retrying transient failures.
// Reasoning blocks are stripped from the returned text.
func (rc *ResilientClient) Generate(ctx context.Context, req ResilientRequest) ResilientResponse {
	logger := logging.GetCurrentLogger()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	logger.LogRequest(req.Step, rc.modelName, lastHumanText(req.Messages))

	response := ResilientResponse{}
	attempt := 0

	result := retry.RetryWithBackoffAndReason(ctx, rc.retryConfig, func() (error, string) {
		attempt++
		resp, err := rc.model.GenerateContent(ctx, req.Messages, req.Options...)
		if err != nil {
			if attempt <= rc.retryConfig.MaxRetries && rc.eventSink != nil && retry.IsRetryableError(err) {
				rc.eventSink.OnRetry(rc.modelName, attempt, err.Error())
			}
			return err, err.Error()
		}
		if resp == nil || len(resp.Choices) == 0 {
			return errors.New("empty response from model"), "empty_response"
		}
		response.Text = StripReasoning(resp.Choices[0].Content)
		return nil, "success"
	}, logger)

	response.Success = result.Success
	response.AttemptsMade = result.Attempts
	response.TotalDuration = result.TotalDuration
	response.RetryReasons = result.RetryReasons
	if !result.Success {
		response.Err = result.LastError
		logger.LogError(req.Step, result.LastError)
	} else {
		logger.LogResponse(req.Step, response.Text)
	}

	if rc.eventSink != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			rc.eventSink.OnTimeout(rc.modelName, req.Timeout, response.TotalDuration)
		}
		rc.eventSink.OnCompletion(rc.modelName, response.TotalDuration, response.Err)
	}

	return response
}

// GenerateStructured runs the request and decodes the (possibly repaired) JSON
// in the answer into target.
func (rc *ResilientClient) GenerateStructured(ctx context.Context, req ResilientRequest, target interface{}) ResilientResponse {
	response := rc.Generate(ctx, req)
	if !response.Success {
		return response
	}

	processed, err := ProcessLLMResponse(response.Text, target)
	if processed.RepairStats.WasRepaired {
		response.JsonRepaired = true
		stats := processed.RepairStats
		response.RepairStats = &stats
		if rc.eventSink != nil {
			rc.eventSink.OnJSONRepair(rc.modelName, stats)
		}
	}
	if err != nil {
		response.Success = false
		response.Err = fmt.Errorf("structured response: %w", err)
		logging.GetCurrentLogger().LogError(req.Step, response.Err)
		return response
	}
	response.Text = processed.RepairedJSON
	return response
}

// ModelName returns the model identifier used for logs and metrics
func (rc *ResilientClient) ModelName() string {
	return rc.modelName
}

// UpdateRetryConfig updates the retry configuration
func (rc *ResilientClient) UpdateRetryConfig(config retry.RetryConfig) {
	rc.retryConfig = config
}

// GetRetryConfig returns the current retry configuration
func (rc *ResilientClient) GetRetryConfig() retry.RetryConfig {
	return rc.retryConfig
}

func lastHumanText(msgs []llms.MessageContent) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range msgs[i].Parts {
			if text, ok := part.(llms.TextContent); ok {
				return text.Text
			}
		}
	}
	return ""
}
