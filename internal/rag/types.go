package rag

// SourceDetail describes one retrieved chunk behind an answer.
type SourceDetail struct {
	Source  string  `json:"source"`
	Chunk   int     `json:"chunk"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// Answer is the response to a question.
type Answer struct {
	Answer        string         `json:"answer"`
	AnswerHTML    string         `json:"answer_html,omitempty"`
	Sources       []string       `json:"sources"`
	SourceDetails []SourceDetail `json:"source_details"`
	Confidence    float64        `json:"confidence"`
	Model         string         `json:"model,omitempty"`
	TraceID       string         `json:"trace_id"`
	Cached        bool           `json:"cached"`
}

// Hit is a retrieved chunk with its combined relevance score.
type Hit struct {
	Source     string  `json:"source"`
	Chunk      int     `json:"chunk"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Keyword    float64 `json:"keyword"`
}

const (
	// NoDocumentsAnswer is returned while the index is empty.
	NoDocumentsAnswer = "No documents are available yet. Upload documents to the knowledge base and ask again."
	// NoMatchAnswer is returned when nothing relevant was retrieved.
	NoMatchAnswer = "I couldn't find any relevant information in the knowledge base."
)

const previewLen = 100
