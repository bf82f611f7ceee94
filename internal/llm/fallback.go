package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// FallbackClient provides automatic failover between multiple LLM models
type FallbackClient struct {
	clients        []*Client
	modelNames     []string
	circuitBreaker *CircuitBreaker
}

// FallbackConfig configures the fallback client
type FallbackConfig struct {
	// Primary model configuration
	PrimaryConfig ClientConfig
	PrimaryName   string

	// Fallback model configurations (in order of preference)
	FallbackConfigs []ClientConfig
	FallbackNames   []string

	// Circuit breaker configuration
	CircuitBreakerConfig CircuitBreakerConfig
}

// CircuitBreakerConfig configures the circuit breaker
type CircuitBreakerConfig struct {
	// Threshold for opening circuit (number of consecutive failures)
	FailureThreshold int

	// Threshold for closing circuit (number of consecutive successes)
	SuccessThreshold int

	// Timeout before attempting to close circuit
	Timeout time.Duration

	// Time window for counting failures
	TimeWindow time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		TimeWindow:       5 * time.Minute,
	}
}

// NewFallbackClient creates a client with automatic model fallback
func NewFallbackClient(config FallbackConfig) *FallbackClient {
	// Create primary client
	clients := []*Client{NewClient(config.PrimaryConfig)}
	modelNames := []string{config.PrimaryName}

	// Create fallback clients
	for i, fbConfig := range config.FallbackConfigs {
		clients = append(clients, NewClient(fbConfig))
		if i < len(config.FallbackNames) {
			modelNames = append(modelNames, config.FallbackNames[i])
		} else {
			modelNames = append(modelNames, fmt.Sprintf("fallback-%d", i+1))
		}
	}

	// Initialize circuit breaker
	cbConfig := config.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	return &FallbackClient{
		clients:        clients,
		modelNames:     modelNames,
		circuitBreaker: NewCircuitBreaker(len(clients), cbConfig),
	}
}

// Complete attempts to get a completion, falling back to other models on failure
func (fc *FallbackClient) Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	var lastErr error

	for i, client := range fc.clients {
		modelName := fc.modelNames[i]
		breaker := fc.circuitBreaker.breakers[i]

		if fc.circuitBreaker.IsOpen(i) {
			log.Warn().
				Str("model", modelName).
				Msg("Circuit breaker open, skipping model")
			continue
		}

		log.Debug().
			Str("model", modelName).
			Int("attempt", i+1).
			Int("total_models", len(fc.clients)).
			Msg("Attempting LLM completion")

		start := time.Now()
		result, err := breaker.Execute(func() (interface{}, error) {
			return client.Complete(ctx, messages)
		})
		duration := time.Since(start)

		if err == nil {
			log.Info().
				Str("model", modelName).
				Int("attempt", i+1).
				Dur("duration", duration).
				Msg("LLM completion succeeded")

			return result.(*ChatResponse), nil
		}

		lastErr = err

		log.Warn().
			Err(err).
			Str("model", modelName).
			Int("attempt", i+1).
			Dur("duration", duration).
			Msg("LLM completion failed, trying fallback")

		// Check if error is retryable - if not, try next model immediately
		if llmErr, ok := err.(*LLMError); ok && !llmErr.IsRetryable() {
			log.Debug().
				Str("model", modelName).
				Msg("Non-retryable error, skipping to next model")
			continue
		}
	}

	// All models failed
	return nil, fmt.Errorf("all models failed, last error: %w", lastErr)
}

// CompleteWithRetry attempts completion with retries on each model before fallback
func (fc *FallbackClient) CompleteWithRetry(ctx context.Context, messages []ChatMessage, maxRetries int) (*ChatResponse, error) {
	var lastErr error

	for i, client := range fc.clients {
		modelName := fc.modelNames[i]
		breaker := fc.circuitBreaker.breakers[i]

		if fc.circuitBreaker.IsOpen(i) {
			log.Warn().
				Str("model", modelName).
				Msg("Circuit breaker open, skipping model")
			continue
		}

		log.Debug().
			Str("model", modelName).
			Int("model_index", i+1).
			Int("total_models", len(fc.clients)).
			Int("max_retries", maxRetries).
			Msg("Attempting LLM completion with retries")

		start := time.Now()
		result, err := breaker.Execute(func() (interface{}, error) {
			return client.CompleteWithRetry(ctx, messages, maxRetries)
		})
		duration := time.Since(start)

		if err == nil {
			log.Info().
				Str("model", modelName).
				Int("model_index", i+1).
				Dur("duration", duration).
				Msg("LLM completion with retry succeeded")

			return result.(*ChatResponse), nil
		}

		lastErr = err

		log.Warn().
			Err(err).
			Str("model", modelName).
			Int("model_index", i+1).
			Dur("duration", duration).
			Msg("LLM completion with retry failed, trying fallback")
	}

	// All models failed
	return nil, fmt.Errorf("all models failed after retries, last error: %w", lastErr)
}

// CompleteWithSystem is a convenience method for system + user prompts with fallback
func (fc *FallbackClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	resp, err := fc.Complete(ctx, messages)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	return resp.Choices[0].Message.Content, nil
}

// ParseJSONResponse parses a JSON response from the LLM
// Delegates to the primary client's JSON parsing logic
func (fc *FallbackClient) ParseJSONResponse(content string, target interface{}) error {
	if len(fc.clients) == 0 {
		return fmt.Errorf("no clients available for JSON parsing")
	}
	// Use primary client's JSON parsing logic
	return fc.clients[0].ParseJSONResponse(content, target)
}

// GetCircuitBreakerStatus returns the status of all model circuit breakers
func (fc *FallbackClient) GetCircuitBreakerStatus() []CircuitBreakerStatus {
	return fc.circuitBreaker.GetAllStatus()
}

// ResetCircuitBreaker resets the circuit breaker for a specific model
func (fc *FallbackClient) ResetCircuitBreaker(modelIndex int) error {
	if modelIndex < 0 || modelIndex >= len(fc.clients) {
		return fmt.Errorf("invalid model index: %d", modelIndex)
	}
	fc.circuitBreaker.Reset(modelIndex)
	log.Info().
		Str("model", fc.modelNames[modelIndex]).
		Int("model_index", modelIndex).
		Msg("Circuit breaker reset")
	return nil
}

// CircuitBreaker fans out the per-model failover policy across one
// sony/gobreaker.CircuitBreaker per model, the same library the risk
// package's exchange/LLM/database breakers use (internal/risk/circuit_breaker.go),
// rather than hand-tracking consecutive-failure counts here.
type CircuitBreaker struct {
	breakers []*gobreaker.CircuitBreaker
	config   CircuitBreakerConfig
}

// CircuitState mirrors gobreaker.State for callers that don't want to
// import sony/gobreaker directly.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

func fromGobreakerState(s gobreaker.State) CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return CircuitOpen
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// CircuitBreakerStatus represents the status of a single model's circuit
type CircuitBreakerStatus struct {
	ModelIndex           int
	State                CircuitState
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	Requests             int
}

// NewCircuitBreaker creates a gobreaker-backed circuit breaker for N models.
func NewCircuitBreaker(numModels int, config CircuitBreakerConfig) *CircuitBreaker {
	breakers := make([]*gobreaker.CircuitBreaker, numModels)
	for i := range breakers {
		modelIndex := i
		breakers[i] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        fmt.Sprintf("llm-model-%d", i),
			MaxRequests: uint32(config.SuccessThreshold),
			Interval:    config.TimeWindow,
			Timeout:     config.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(config.FailureThreshold)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("model", name).
					Int("model_index", modelIndex).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("LLM circuit breaker state change")
			},
		})
	}

	return &CircuitBreaker{breakers: breakers, config: config}
}

// IsOpen checks if the circuit is open for a given model.
func (cb *CircuitBreaker) IsOpen(modelIndex int) bool {
	if modelIndex < 0 || modelIndex >= len(cb.breakers) {
		return true // Safe default
	}
	return cb.breakers[modelIndex].State() == gobreaker.StateOpen
}

// Reset clears accumulated counts for a specific model. gobreaker has no
// direct reset, so this replaces the model's breaker with a new one built
// from the same settings.
func (cb *CircuitBreaker) Reset(modelIndex int) {
	if modelIndex < 0 || modelIndex >= len(cb.breakers) {
		return
	}
	name := fmt.Sprintf("llm-model-%d", modelIndex)
	cb.breakers[modelIndex] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cb.config.SuccessThreshold),
		Interval:    cb.config.TimeWindow,
		Timeout:     cb.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cb.config.FailureThreshold)
		},
	})
}

// GetAllStatus returns the status of all circuits.
func (cb *CircuitBreaker) GetAllStatus() []CircuitBreakerStatus {
	statuses := make([]CircuitBreakerStatus, len(cb.breakers))
	for i, b := range cb.breakers {
		counts := b.Counts()
		statuses[i] = CircuitBreakerStatus{
			ModelIndex:           i,
			State:                fromGobreakerState(b.State()),
			ConsecutiveFailures:  int(counts.ConsecutiveFailures),
			ConsecutiveSuccesses: int(counts.ConsecutiveSuccesses),
			Requests:             int(counts.Requests),
		}
	}
	return statuses
}
