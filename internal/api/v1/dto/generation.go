package dto

import (
	"encoding/json"
	"strings"
	"time"
)

// KeywordList accepts either a JSON array of strings or a single
// comma-separated string, matching what the dashboard form submits.
type KeywordList []string

func (k *KeywordList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*k = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	var out []string
	for _, part := range strings.Split(single, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*k = out
	return nil
}

// GenerateRequest is the body of a generation request.
type GenerateRequest struct {
	Title    string      `json:"title" validate:"required"`
	Keywords KeywordList `json:"keywords" validate:"required,min=1"`
}

// GenerateResponse carries the generated product copy.
type GenerateResponse struct {
	OutputMarkdown string `json:"output_markdown"`
}

// GenerationResponseDTO is one history entry in API responses.
type GenerationResponseDTO struct {
	ID             string    `json:"id"`
	ProductTitle   string    `json:"product_title"`
	Keywords       []string  `json:"keywords"`
	OutputMarkdown string    `json:"output_markdown"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageResponseDTO is the dashboard plan/usage summary.
type UsageResponseDTO struct {
	IsPro      bool `json:"is_pro"`
	TodayCount int  `json:"today_count"`
	DailyLimit int  `json:"daily_limit"`
}
