// Package protocol defines the JSON messages exchanged with the browser
// extension over the audio websocket.
package protocol

// Message type tags sent to the client.
const (
	TypeTranscript  = "transcript"
	TypeLLMResponse = "llm_response"
	TypeError       = "error"
)

// Transcript carries one transcript fragment, interim or final.
type Transcript struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

func NewTranscript(text string, final bool) Transcript {
	return Transcript{Type: TypeTranscript, Text: text, Final: final}
}

// Response carries the generated suggestion together with the utterance it
// answers.
type Response struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Question string `json:"question"`
}

func NewResponse(text, question string) Response {
	return Response{Type: TypeLLMResponse, Text: text, Question: question}
}

// Error reports a collaborator or internal failure scoped to one session.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
