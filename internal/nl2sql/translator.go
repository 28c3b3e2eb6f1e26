package nl2sql

import "context"

type Request struct {
	Question string `json:"question"`
	Schema   string `json:"schema"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type SummaryRequest struct {
	Question string   `json:"question"`
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// NoDataSummary is returned for empty result sets without calling the model.
const NoDataSummary = "No data found."
