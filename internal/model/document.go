package model

import "time"

type DocumentType string

const (
	DocumentPDF  DocumentType = "pdf"
	DocumentDOCX DocumentType = "docx"
	DocumentText DocumentType = "text"
)

// DocumentDescriptor is the registry entry for an ingested document. It is
// created on the first successful ingestion of a name and never mutated.
type DocumentDescriptor struct {
	Name       string       `json:"name"`
	Type       DocumentType `json:"type"`
	Pages      int          `json:"pages"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// Excerpt is a retrieved chunk returned to the client alongside an answer.
type Excerpt struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

// ConversationTurn is one question/answer exchange kept in the memory namespace.
type ConversationTurn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

func (t ConversationTurn) Text() string {
	return "User: " + t.Question + "\nAssistant: " + t.Answer
}
