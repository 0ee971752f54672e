package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fluentfuture/leadscout/internal/config"
)

// OpenAIClient implements Classifier over the OpenAI API: embeddings for the
// similarity gate, chat completion for the verification gate.
type OpenAIClient struct {
	client *openai.Client
	config config.OpenAIConfig
	logger *slog.Logger

	topics    []string
	topicVecs [][]float32 // unit-normalized reference vectors
	positive  []string
	negative  []string
}

// NewOpenAIClient creates the gateway and precomputes the reference-topic
// embeddings. Failure here is fatal to the caller: without reference vectors
// the similarity gate cannot run at all.
func NewOpenAIClient(ctx context.Context, cfg config.OpenAIConfig, topics, positiveCriteria, negativeCriteria []string, logger *slog.Logger) (*OpenAIClient, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("no reference topics configured")
	}

	c := &OpenAIClient{
		client:   openai.NewClient(cfg.APIKey),
		config:   cfg,
		logger:   logger,
		topics:   topics,
		positive: positiveCriteria,
		negative: negativeCriteria,
	}

	logger.Info("computing reference topic embeddings", "topics", len(topics), "model", cfg.EmbedModel)

	vecs, err := c.embedTexts(ctx, topics)
	if err != nil {
		return nil, fmt.Errorf("precompute topic embeddings: %w", err)
	}

	c.topicVecs = make([][]float32, len(vecs))
	for i, v := range vecs {
		c.topicVecs[i] = normalize(v)
	}

	logger.Info("reference topic embeddings ready", "count", len(c.topicVecs))
	return c, nil
}

// Embed computes a dense vector for text and returns the maximum cosine
// similarity against the reference topics plus the matching topic label.
// Fail-closed: any transport or API error yields the zero Similarity.
func (c *OpenAIClient) Embed(ctx context.Context, text string) (Similarity, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	vecs, err := c.embedTexts(callCtx, []string{text})
	if err != nil {
		c.logger.Warn("embedding call failed, treating as no match", "error", err)
		return Similarity{}, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) == 0 {
		return Similarity{}, fmt.Errorf("embed: empty response")
	}

	query := normalize(vecs[0])

	best := Similarity{}
	for i, topic := range c.topicVecs {
		if sim := dot(query, topic); sim > best.Score {
			best.Score = sim
			best.BestTopic = c.topics[i]
		}
	}

	return best, nil
}

// Verify asks the generative model whether the text is a genuine request
// matching the profile rubric and parses a strict YES/NO-prefixed answer.
// Fail-open: transport or parsing errors return an accepting Verdict whose
// rationale carries the error.
func (c *OpenAIClient) Verify(ctx context.Context, text string) (Verdict, error) {
	prompt := c.buildVerificationPrompt(text)

	var resp openai.ChatCompletionResponse
	var err error

	// One retry on rate limiting, mirroring the platform's 429 behavior.
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		resp, err = c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.config.ChatModel,
			Temperature: c.config.Temperature,
			MaxTokens:   c.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		cancel()

		if err == nil || !isRateLimited(err) {
			break
		}

		c.logger.Warn("verifier rate limited, retrying", "attempt", attempt+1)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(time.Second << uint(attempt)):
			continue
		}
		break
	}

	if err != nil {
		c.logger.Warn("verification call failed, failing open", "error", err)
		return Verdict{Accepted: true, Rationale: fmt.Sprintf("verification error: %v", err)}, fmt.Errorf("verify: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Verdict{Accepted: true, Rationale: "verification error: no completion choices"}, fmt.Errorf("verify: no completion choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	return ParseVerdict(answer), nil
}

// ParseVerdict interprets a YES/NO-prefixed verifier response. Anything not
// starting with YES is a rejection: the verifier is instructed to be strict
// and an off-format answer gives no positive evidence.
func ParseVerdict(answer string) Verdict {
	return Verdict{
		Accepted:  strings.HasPrefix(strings.ToUpper(answer), "YES"),
		Rationale: answer,
	}
}

func (c *OpenAIClient) buildVerificationPrompt(text string) string {
	var b strings.Builder

	b.WriteString("Analyze the following post or comment and determine if it matches the criteria below.\n\n")
	fmt.Fprintf(&b, "Text: %q\n\n", text)

	b.WriteString("Criteria for YES:\n")
	for _, crit := range c.positive {
		fmt.Fprintf(&b, "- %s\n", crit)
	}

	b.WriteString("\nCriteria for NO:\n")
	for _, crit := range c.negative {
		fmt.Fprintf(&b, "- %s\n", crit)
	}

	b.WriteString("\nAnswer with ONLY \"YES\" or \"NO\", followed by a brief one-sentence explanation.\n\nFormat: YES/NO - [reason]")

	return b.String()
}

func (c *OpenAIClient) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.EmbedModel),
	})
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "Rate limit")
}

// normalize returns v scaled to unit length, leaving zero vectors unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// dot computes the inner product of two unit vectors, i.e. their cosine
// similarity.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
