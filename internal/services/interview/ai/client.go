// Package ai calls the hosted generation backend for hints, challenges, and
// reference solutions. The rest of the system only ever sees result text and
// a success/failure signal.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	platformerrors "github.com/devready/devready/internal/platform/errors"
	"github.com/devready/devready/internal/platform/timeouts"
	"github.com/devready/devready/internal/services/interview/challenge"
)

const defaultBaseURL = "https://api.openai.com"

const defaultModel = "gpt-5"

// ErrNotConfigured reports that no API key is set; callers turn this into
// user-visible text rather than failing the session.
var ErrNotConfigured = platformerrors.New(platformerrors.CodeAINotConfigured, "generation backend is not configured")

// Config holds the generation backend settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client calls the generation backend's Responses API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client. Returns nil when no API key is configured;
// callers must treat a nil client as ErrNotConfigured.
func NewClient(config Config) *Client {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil
	}

	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeouts.AIRequest,
		},
	}
}

// Hint asks for one short hint given the candidate's code and output.
func (c *Client) Hint(ctx context.Context, language, code, output string) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}

	prompt := strings.Join([]string{
		"You are a coding interview assistant.",
		"Given the candidate's code and the current output/error, provide ONE helpful hint.",
		"Do NOT give a full solution. Keep it short and actionable (3-6 sentences).",
		"",
		"Language: " + language,
		"Code:",
		code,
		"",
		"Output/Error:",
		output,
	}, "\n")

	text, err := c.respond(ctx, responsesRequest{Model: c.model, Input: prompt})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "No hint returned. Try again after running code.", nil
	}
	return text, nil
}

// Challenge generates a fresh challenge for language and level. The backend
// is instructed to return the challenge record as bare JSON.
func (c *Client) Challenge(ctx context.Context, language string, level int) (challenge.Challenge, error) {
	if c == nil {
		return challenge.Challenge{}, ErrNotConfigured
	}

	system := strings.Join([]string{
		"You generate short coding interview challenges.",
		"Return ONLY valid JSON (no markdown, no commentary).",
		"Schema:",
		"{ id, title, language, level, prompt, starterCode, solutionCode }",
		"- id: short string unique-ish",
		"- language: one of: sql, python, javascript, csharp, java",
		"- level: 1|2|3",
		"- starterCode MUST be intentionally flawed/broken for the level",
		"- solutionCode MUST be correct and runnable",
		"",
		"Theme requirements:",
		"- For code languages (python/javascript/csharp/java): Fibonacci-themed.",
		"  L1: broken base case or small bug fix",
		"  L2: memoization required",
		"  L3: fast approach (iterative DP or fast doubling) and/or modulo 1_000_000_007",
		"",
		"- For SQL (SQLite): use Customers / Invoices / Projects tables.",
		"  L1: simple broken SELECT (typo like form->from or bad quotes)",
		"  L2: GROUP BY with filter and sort",
		"  L3: CTE + join / aggregation",
		"",
		"Keep prompts concise.",
	}, "\n")

	user, err := json.Marshal(map[string]any{
		"language": language,
		"level":    level,
		"theme":    "fibonacci",
	})
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("marshal challenge request: %w", err)
	}

	text, err := c.respond(ctx, responsesRequest{
		Model: c.model,
		Input: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: string(user)},
		},
	})
	if err != nil {
		return challenge.Challenge{}, err
	}

	var ch challenge.Challenge
	if err := json.Unmarshal([]byte(text), &ch); err != nil {
		return challenge.Challenge{}, platformerrors.Wrap(
			platformerrors.CodeExternalFailure,
			"generation backend did not return valid challenge JSON",
			err,
		)
	}
	if strings.TrimSpace(ch.StarterCode) == "" || strings.TrimSpace(ch.Prompt) == "" {
		return challenge.Challenge{}, platformerrors.New(
			platformerrors.CodeExternalFailure,
			"generated challenge is missing required fields",
		)
	}

	// The request's language/level are authoritative over whatever came back.
	ch.Language = language
	ch.Level = level
	ch.Source = challenge.SourceAI
	return ch, nil
}

// Solve asks for a final corrected solution for the given challenge.
func (c *Client) Solve(ctx context.Context, ch challenge.Challenge) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}

	prompt := strings.Join([]string{
		"Solve this coding interview challenge.",
		"Return ONLY the corrected final code (no markdown, no commentary).",
		"",
		"Language: " + ch.Language,
		fmt.Sprintf("Level: %d", ch.Level),
		"Prompt:",
		ch.Prompt,
		"",
		"Starter code:",
		ch.StarterCode,
	}, "\n")

	text, err := c.respond(ctx, responsesRequest{Model: c.model, Input: prompt})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "(no solution returned)", nil
	}
	return text, nil
}

type responsesRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesPayload struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (c *Client) respond(ctx context.Context, reqBody responsesRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.CodeExternalFailure, "call generation backend", err)
	}
	defer resp.Body.Close()

	var payload responsesPayload
	if resp.StatusCode != http.StatusOK {
		return "", platformerrors.New(
			platformerrors.CodeExternalFailure,
			fmt.Sprintf("generation backend status %d", resp.StatusCode),
		)
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", platformerrors.Wrap(platformerrors.CodeExternalFailure, "decode backend response", err)
	}
	return extractText(payload), nil
}

// extractText prefers output_text and falls back to walking content items.
func extractText(payload responsesPayload) string {
	if text := strings.TrimSpace(payload.OutputText); text != "" {
		return text
	}

	var b strings.Builder
	for _, item := range payload.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" && content.Text != "" {
				b.WriteString(content.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
