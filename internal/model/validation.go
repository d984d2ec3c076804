package model

// ValidationRequest is the question payload sent to the validation service.
type ValidationRequest struct {
	Statement  string             `json:"statement"`
	Type       QuestionType       `json:"type"`
	Options    Optional[[]string] `json:"options"`
	Answer     Optional[string]   `json:"answer"`
	Solution   Optional[string]   `json:"solution"`
	PageNumber int                `json:"pageNumber"`
}

// RequestFor builds the validation payload for a candidate.
func RequestFor(c Candidate) ValidationRequest {
	return ValidationRequest{
		Statement: c.Statement,
		Type:      c.Type,
		Options:   c.Options,
		Answer:    c.Answer,
		Solution:  c.Solution,
	}
}

// Verdict is the validation service's answer for one question.
type Verdict struct {
	IsValid    bool
	Correction *Correction // nil when the service proposed no fix
	Reason     string
}
