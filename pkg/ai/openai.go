package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	gradingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eduportal",
		Subsystem: "ai",
		Name:      "grading_duration_seconds",
		Help:      "Duration of grading suggestion requests",
	}, []string{"model"})

	gradingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eduportal",
		Subsystem: "ai",
		Name:      "grading_failures_total",
		Help:      "Number of failed grading suggestion requests",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGrader{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/eduportal-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// Suggest asks the model for a score and clamps it to 0..MaxMarks.
func (g *OpenAIGrader) Suggest(parent context.Context, input GradingInput) (GradingResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.suggest_grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("max_marks", input.MaxMarks),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: graderSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildGradingPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	gradingDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return GradingResult{}, g.fail(span, fmt.Errorf("openai suggest: %w", err))
	}
	if len(resp.Choices) == 0 {
		return GradingResult{}, g.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	result, err := parseGradingResponse(strings.TrimSpace(resp.Choices[0].Message.Content), input.MaxMarks)
	if err != nil {
		return GradingResult{}, g.fail(span, err)
	}

	g.logger.Debug().Int("marks", result.Marks).Int("max_marks", input.MaxMarks).Int("tokens", resp.Usage.TotalTokens).Msg("grading suggestion received")
	return result, nil
}

func (g *OpenAIGrader) fail(span trace.Span, err error) error {
	gradingFailures.WithLabelValues(g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func graderSystemPrompt() string {
	return "You are an assistant helping a teacher grade exam answers. Respond with a JSON object containing " +
		"marks (integer), confidence (0-1) and feedback (one short paragraph). Never exceed the maximum marks."
}

func buildGradingPrompt(input GradingInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Exam\n")
	builder.WriteString(input.ExamTitle)
	builder.WriteString("\n\n## Question (")
	builder.WriteString(input.QuestionType)
	builder.WriteString(", max ")
	builder.WriteString(strconv.Itoa(input.MaxMarks))
	builder.WriteString(" marks)\n")
	builder.WriteString(input.Question)
	if input.Rubric != "" {
		builder.WriteString("\n\n## Rubric\n")
		builder.WriteString(input.Rubric)
	}
	builder.WriteString("\n\n## Student Answer\n")
	builder.WriteString(input.StudentAnswer)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseGradingResponse(content string, maxMarks int) (GradingResult, error) {
	var data struct {
		Marks      float64 `json:"marks"`
		Confidence float64 `json:"confidence"`
		Feedback   string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return GradingResult{}, fmt.Errorf("parse grading json: %w", err)
	}

	marks := int(math.Round(data.Marks))
	if marks < 0 {
		marks = 0
	}
	if marks > maxMarks {
		marks = maxMarks
	}
	confidence := math.Max(0, math.Min(1, data.Confidence))

	return GradingResult{Marks: marks, Confidence: confidence, Feedback: strings.TrimSpace(data.Feedback)}, nil
}
