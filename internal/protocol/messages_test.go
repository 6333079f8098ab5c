package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessagesCarryTheirTypeTags(t *testing.T) {
	tests := []struct {
		name    string
		message any
		want    string
	}{
		{"transcript", NewTranscript("hello", false), `"type":"transcript"`},
		{"llm response", NewResponse("answer", "question?"), `"type":"llm_response"`},
		{"error", NewError("boom"), `"type":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.message)
			if err != nil {
				t.Fatalf("failed to marshal: %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Fatalf("expected %s in %s", tt.want, data)
			}
		})
	}
}

func TestInterimTranscriptOmitsFinalFlag(t *testing.T) {
	data, err := json.Marshal(NewTranscript("hello", false))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if strings.Contains(string(data), "final") {
		t.Fatalf("expected interim transcript to omit final flag, got %s", data)
	}

	data, err = json.Marshal(NewTranscript("hello", true))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !strings.Contains(string(data), `"final":true`) {
		t.Fatalf("expected final flag on final transcript, got %s", data)
	}
}

func TestResponseIncludesQuestion(t *testing.T) {
	data, err := json.Marshal(NewResponse("the answer", "the question?"))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !strings.Contains(string(data), `"question":"the question?"`) {
		t.Fatalf("expected question field, got %s", data)
	}
}
