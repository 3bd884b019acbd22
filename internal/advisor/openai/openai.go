package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/trace"
)

const systemPrompt = "You are a risk reviewer for an intraday range-sweep strategy. " +
	"You receive the session state and the pending transition as JSON. " +
	"Respond ONLY with compact JSON: {\"proceed\": bool, \"confidence\": 0..1, \"reasoning\": string}."

// Compile-time interface check
var _ interfaces.Advisor = (*Advisor)(nil)

// Advisor asks an OpenAI chat model for a second opinion on a pending
// transition. Errors are surfaced as-is; the advisorobs wrapper owns the
// fail-open behavior.
type Advisor struct {
	cfg *config.Config
}

// New creates an OpenAI advisor.
func New(cfg *config.Config) *Advisor {
	return &Advisor{cfg: cfg}
}

func (a *Advisor) Advise(ctx context.Context, stage model.State, session *model.Session, event map[string]any) (model.Opinion, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return model.Opinion{}, errors.New("OPENAI_API_KEY missing")
	}

	state := map[string]any{
		"stage":  stage,
		"symbol": session.Symbol,
		"state":  session.State,
		"range":  session.Range,
		"sweep":  map[string]any{"direction": session.SweepDirection, "price": session.SweepPrice},
		"trades": session.TradeCount,
		"losses": session.LossCount,
		"event":  event,
	}
	sb, _ := json.Marshal(state)
	prompt := fmt.Sprintf("State:%s", string(sb))

	body := map[string]any{
		"model":       a.cfg.Advisor.Model,
		"messages":    []map[string]string{{"role": "system", "content": systemPrompt}, {"role": "user", "content": prompt}},
		"temperature": a.cfg.Advisor.Temperature,
		"max_tokens":  a.cfg.Advisor.MaxTokens,
	}
	bb, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bb))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return model.Opinion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return model.Opinion{}, fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return model.Opinion{}, err
	}
	if len(r.Choices) == 0 {
		return model.Opinion{}, errors.New("no choices")
	}

	out := strings.TrimSpace(r.Choices[0].Message.Content)

	var parsed struct {
		Proceed    bool    `json:"proceed"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		// unusable content degrades to a neutral go-ahead
		return model.Opinion{Stage: stage, Proceed: true, Confidence: 0, Reasoning: "invalid_json", Provider: "openai"}, nil
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		parsed.Confidence = 0
	}

	return model.Opinion{
		Stage:      stage,
		Proceed:    parsed.Proceed,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Provider:   "openai",
	}, nil
}
