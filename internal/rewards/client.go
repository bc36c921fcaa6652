// Package rewards talks to the third-party survey network's listing API.
package rewards

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://live-api.cpx-research.com/api"

// Config holds the survey network settings.
type Config struct {
	AppID            string
	Secret           string
	BaseURL          string
	CreditsPerDollar float64
	Timeout          time.Duration
}

// Survey is one available survey, with payout translated into credits.
type Survey struct {
	ID             string  `json:"id"`
	LengthMinutes  int     `json:"length_minutes"`
	PayoutUSD      float64 `json:"payout_usd"`
	CreditsReward  float64 `json:"credits_reward"`
	ConversionRate float64 `json:"conversion_rate"`
	Href           string  `json:"href"`
	Type           string  `json:"type"`
	Rating         float64 `json:"rating,omitempty"`
	RatingCount    int     `json:"rating_count"`
}

// SurveyList is the transformed listing returned to callers.
type SurveyList struct {
	Surveys          []Survey `json:"surveys"`
	Count            int      `json:"count"`
	TotalAvailable   int      `json:"total_available"`
	CreditsPerDollar float64  `json:"credits_per_dollar"`
}

// Client fetches survey listings for a user.
type Client struct {
	appID            string
	secret           string
	baseURL          string
	creditsPerDollar float64
	httpClient       *http.Client
}

// New creates a survey network client from configuration.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perDollar := cfg.CreditsPerDollar
	if perDollar <= 0 {
		perDollar = 100
	}
	return &Client{
		appID:            cfg.AppID,
		secret:           cfg.Secret,
		baseURL:          base,
		creditsPerDollar: perDollar,
		httpClient:       &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the network credentials are present.
func (c *Client) Configured() bool {
	return c.appID != "" && c.secret != ""
}

// CreditsPerDollar returns the payout conversion rate.
func (c *Client) CreditsPerDollar() float64 {
	return c.creditsPerDollar
}

// SecureHash computes the per-user hash the network requires on listing
// requests: MD5(userID + "-" + secret).
func (c *Client) SecureHash(userID string) string {
	sum := md5.Sum([]byte(userID + "-" + c.secret))
	return hex.EncodeToString(sum[:])
}

type wireSurvey struct {
	ID                    string `json:"id"`
	LOI                   string `json:"loi"`
	PayoutPublisherUSD    string `json:"payout_publisher_usd"`
	ConversionRate        string `json:"conversion_rate"`
	Href                  string `json:"href"`
	Type                  string `json:"type"`
	StatisticsRatingCount string `json:"statistics_rating_count"`
	StatisticsRatingAvg   string `json:"statistics_rating_avg"`
}

type wireResponse struct {
	Status                string       `json:"status"`
	CountAvailableSurveys int          `json:"count_available_surveys"`
	CountReturnedSurveys  int          `json:"count_returned_surveys"`
	Surveys               []wireSurvey `json:"surveys"`
}

// Surveys fetches available surveys for the user. The client IP and user
// agent are forwarded because the network targets surveys by both.
func (c *Client) Surveys(ctx context.Context, userID, clientIP, userAgent string) (*SurveyList, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("rewards: network not configured")
	}
	if userID == "" {
		return nil, fmt.Errorf("rewards: user id required")
	}
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("ext_user_id", userID)
	params.Set("output_method", "api")
	params.Set("ip_user", clientIP)
	params.Set("user_agent", userAgent)
	params.Set("limit", "12")
	params.Set("secure_hash", c.SecureHash(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/get-surveys.php?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("rewards: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rewards: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rewards: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rewards: API returned status %d", resp.StatusCode)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("rewards: decode response: %w", err)
	}
	if wire.Status != "success" {
		return nil, fmt.Errorf("rewards: API status %q", wire.Status)
	}

	list := &SurveyList{
		Count:            wire.CountReturnedSurveys,
		TotalAvailable:   wire.CountAvailableSurveys,
		CreditsPerDollar: c.creditsPerDollar,
	}
	for _, s := range wire.Surveys {
		payout, _ := strconv.ParseFloat(s.PayoutPublisherUSD, 64)
		conversion, _ := strconv.ParseFloat(s.ConversionRate, 64)
		rating, _ := strconv.ParseFloat(s.StatisticsRatingAvg, 64)
		ratingCount, _ := strconv.Atoi(s.StatisticsRatingCount)
		length, _ := strconv.Atoi(s.LOI)
		list.Surveys = append(list.Surveys, Survey{
			ID:             s.ID,
			LengthMinutes:  length,
			PayoutUSD:      payout,
			CreditsReward:  math.Floor(payout * c.creditsPerDollar),
			ConversionRate: conversion,
			Href:           s.Href,
			Type:           s.Type,
			Rating:         rating,
			RatingCount:    ratingCount,
		})
	}
	return list, nil
}
