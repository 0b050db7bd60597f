package providers

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CallRecord is one provider call as written to the provider_calls audit table.
type CallRecord struct {
	CallID           string
	Operation        string
	ProviderName     string
	Model            string
	KeyAlias         string
	Status           string
	ErrorType        string
	Error            string
	InputCount       int
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

type Auditor interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

func NewCallRecord(operation string, info ProviderInfo, inputs int, started time.Time, err error) CallRecord {
	rec := CallRecord{
		CallID:       uuid.NewString(),
		Operation:    operation,
		ProviderName: info.Name,
		Model:        info.Model,
		KeyAlias:     info.Key,
		Status:       "ok",
		InputCount:   inputs,
		Latency:      time.Since(started),
	}
	if err != nil {
		rec.Status = "error"
		rec.ErrorType = string(ClassifyError(err))
		rec.Error = err.Error()
	}
	return rec
}
