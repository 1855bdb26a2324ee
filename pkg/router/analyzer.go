// Package router classifies chat messages and maps them to canned SQL.
package router

import (
	"math"
	"strings"
)

// Intent the most specific purpose detected in a message
type Intent string

// Intents, checked in this order
const (
	IntentSchemaExploration Intent = "schema_exploration"
	IntentDataRetrieval     Intent = "data_retrieval"
	IntentAPICall           Intent = "api_call"
	IntentSystemStatus      Intent = "system_status"
	IntentAIAssistance      Intent = "ai_assistance"
	IntentGeneral           Intent = "general"
)

var databaseKeywords = []string{
	"select", "table", "database", "schema", "sql", "query", "data",
	"employee", "department", "order", "customer", "column", "row",
	"insert", "update", "delete", "join", "where", "group by",
	"employees", "departments", "orders", "customers", "records",
	"show me", "get all", "find", "list", "retrieve", "fetch",
	"structure", "tables", "metadata", "information",
}

var apiKeywords = []string{
	"api", "http", "request", "endpoint", "call", "external",
	"service", "rest", "json", "response", "web service",
	"integration", "third party", "remote", "fetch data",
	"jsonplaceholder", "typicode", "posts", "users",
}

var aiKeywords = []string{
	"explain", "how", "what", "why", "help", "describe", "tell me",
	"analyze", "suggest", "recommend", "optimize", "improve",
	"understand", "clarify", "breakdown", "summary", "overview",
	"best practice", "advice", "guidance", "meaning", "purpose",
}

var systemKeywords = []string{
	"status", "health", "check", "connection", "available", "tools",
	"system", "server", "running", "working", "test", "verify",
}

var (
	schemaWords = []string{"schema", "structure", "tables"}
	entityWords = []string{"employee", "department", "order", "customer"}
)

// Confidence per category share of matched keywords
type Confidence struct {
	Database float64 `json:"database"`
	API      float64 `json:"api"`
	AI       float64 `json:"ai"`
	System   float64 `json:"system"`
}

// Analysis result of classifying one message
type Analysis struct {
	IsDatabaseQuery bool       `json:"is_database_query"`
	IsAPIRequest    bool       `json:"is_api_request"`
	RequiresAI      bool       `json:"requires_ai"`
	IsSystemQuery   bool       `json:"is_system_query"`
	IsComplex       bool       `json:"is_complex"`
	Intent          Intent     `json:"query_intent"`
	WordCount       int        `json:"word_count"`
	Confidence      Confidence `json:"confidence"`
}

// Analyze classifies a message by case-insensitive keyword substrings.
func Analyze(query string) Analysis {
	q := strings.ToLower(query)
	words := len(strings.Fields(q))

	a := Analysis{
		IsDatabaseQuery: containsAny(q, databaseKeywords),
		IsAPIRequest:    containsAny(q, apiKeywords),
		RequiresAI:      containsAny(q, aiKeywords),
		IsSystemQuery:   containsAny(q, systemKeywords),
		IsComplex:       words > 10,
		WordCount:       words,
		Confidence: Confidence{
			Database: confidence(q, databaseKeywords, words),
			API:      confidence(q, apiKeywords, words),
			AI:       confidence(q, aiKeywords, words),
			System:   confidence(q, systemKeywords, words),
		},
	}

	switch {
	case containsAny(q, schemaWords):
		a.Intent = IntentSchemaExploration
	case containsAny(q, entityWords):
		a.Intent = IntentDataRetrieval
	case a.IsAPIRequest:
		a.Intent = IntentAPICall
	case a.IsSystemQuery:
		a.Intent = IntentSystemStatus
	case a.RequiresAI && !a.IsDatabaseQuery:
		a.Intent = IntentAIAssistance
	default:
		a.Intent = IntentGeneral
	}
	return a
}

// confidence is min(matches / max(words*0.3, 1), 1).
func confidence(q string, keywords []string, words int) float64 {
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			matches++
		}
	}
	return math.Min(float64(matches)/math.Max(float64(words)*0.3, 1), 1)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
