package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// This file implements the narrative blurb attached to every probability
// report: a short comment in the voice of Poultry, a chicken with opinions on
// champagne weather. When no language model is configured, or the call fails,
// one of a few canned lines is returned instead.

var fallbackNarratives = []string{
	"Bawk bawk! Something went wrong in my coop 🐔 Try again later for proper champagne wisdom!",
	"Cluck! My feathers are ruffled by technical difficulties. Give me a moment to preen and try again! 🪶",
	"Bawk! Even chickens need debugging sometimes. Please try again - I promise better champagne advice! 🍾",
}

var errEmptyNarrative = errors.New("empty response from language model")

// NarrativeInput is the weather context the blurb is written about.
type NarrativeInput struct {
	Location        string
	Session         string
	RainProbability *float64
	TempLow         *float64
	TempHigh        *float64
}

// Prompt renders the instruction sent to the language model.
func (in NarrativeInput) Prompt() string {
	return fmt.Sprintf(
		"You are Poultry, a sassy chicken who tweets about champagne and weather. "+
			"Write a short, witty tweet (under 200 characters) about this weather: %s%% rain chance, %s-%s°C in %s for %s. "+
			"Include \"bawk\" naturally and be opinionated about whether this is good champagne weather.",
		wholeOrNA(scale(in.RainProbability, 100)), wholeOrNA(in.TempLow), wholeOrNA(in.TempHigh), in.Location, in.Session,
	)
}

func scale(v *float64, f float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v * f
	return &s
}

func wholeOrNA(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.0f", math.Round(*v))
}

// Narrator writes the blurb for a report.
type Narrator interface {
	Narrate(ctx context.Context, in NarrativeInput) NarrativeJSON
}

// fallbackNarrative picks a canned line. The choice depends only on the
// prompt so that identical reports get identical text.
func fallbackNarrative(in NarrativeInput) NarrativeJSON {
	idx := xxhash.Sum64String(in.Prompt()) % uint64(len(fallbackNarratives))
	return NarrativeJSON{Text: fallbackNarratives[idx], Fallback: true}
}

// FallbackNarrator never calls out and always returns a canned line.
type FallbackNarrator struct{}

func (FallbackNarrator) Narrate(_ context.Context, in NarrativeInput) NarrativeJSON {
	return fallbackNarrative(in)
}

// OpenAINarrator calls the OpenAI Responses API.
type OpenAINarrator struct {
	apiKey     string
	url        string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOpenAINarrator(apiKey, url, model string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *OpenAINarrator {
	return &OpenAINarrator{
		apiKey:     apiKey,
		url:        url,
		model:      model,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (n *OpenAINarrator) Narrate(ctx context.Context, in NarrativeInput) NarrativeJSON {
	text, err := n.complete(ctx, in.Prompt())
	if err != nil {
		n.logger.Warn("narrative generation failed, using fallback", "error", err)
		return fallbackNarrative(in)
	}
	return NarrativeJSON{Text: text}
}

type responsesRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (n *OpenAINarrator) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	payload, err := json.Marshal(responsesRequest{Model: n.model, Input: prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("language model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("language model request returned non-200 status: %s", resp.Status)
	}

	var decoded responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode language model response: %w", err)
	}

	var sb strings.Builder
	for _, item := range decoded.Output {
		for _, c := range item.Content {
			if c.Type == "output_text" {
				sb.WriteString(c.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errEmptyNarrative
	}
	return text, nil
}
