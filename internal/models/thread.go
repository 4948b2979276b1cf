// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import "time"

// Direction of a thread message relative to the support desk.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Channel a thread message travelled over.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelManual Channel = "manual"
	ChannelSystem Channel = "system"
)

// Message is one entry of a case's correspondence, kept in arrival order.
type Message struct {
	ID             int64
	CaseID         int64
	Direction      Direction
	Channel        Channel
	Subject        string
	SenderEmail    string
	RecipientEmail string
	Body           string
	CreatedAt      time.Time
}

// Analysis records one classification run against a case.
type Analysis struct {
	ID                int64
	CaseID            int64
	Cycle             int64
	Provider          string
	ModelVersion      string
	PredictedCategory string
	Confidence        float64
	LatencyMs         int64
	Fallback          bool
	CreatedAt         time.Time
}

// Provider names recorded on an Analysis.
const (
	ProviderOpenAI   = "openai"
	ProviderFallback = "fallback"
)

// Share is the count of cases holding one value of a dimension.
type Share struct {
	Key        string  `json:"key"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DayCount is the number of cases created on one UTC day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Summary holds the headline case counters.
type Summary struct {
	Total            int64    `json:"total_cases"`
	Completed        int64    `json:"completed"`
	NotCompleted     int64    `json:"not_completed"`
	OperatorRequired int64    `json:"operator_required"`
	AvgResponseHours *float64 `json:"avg_response_hours"`
	Today            int64    `json:"today_cases"`
	Week             int64    `json:"week_cases"`
}

// Stats aggregates the case table for the dashboard.
type Stats struct {
	Summary         Summary    `json:"summary"`
	ByCategory      []Share    `json:"by_category"`
	BySentiment     []Share    `json:"by_sentiment"`
	BySource        []Share    `json:"by_source"`
	ByDeviceType    []Share    `json:"by_device_type"`
	OperatorReasons []Share    `json:"operator_reasons"`
	Timeline        []DayCount `json:"timeline"`
}
