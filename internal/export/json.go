// Package export turns sessions and topologies into shareable documents.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/internal/chat"
)

// TranscriptDoc is the top-level JSON export of one session.
type TranscriptDoc struct {
	Session    string       `json:"session"`
	ExportedAt string       `json:"exportedAt"`
	Turns      []TurnExport `json:"turns"`
}

// TurnExport describes one conversation turn.
type TurnExport struct {
	Role        string             `json:"role"`
	Text        string             `json:"text"`
	Attachments []AttachmentExport `json:"attachments,omitempty"`
}

// AttachmentExport records attachment metadata; the bytes themselves stay
// out of the document.
type AttachmentExport struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Bytes     int    `json:"bytes"`
}

// Transcript builds a TranscriptDoc from one session of the store.
func Transcript(store *chat.Store, sessionID string) (*TranscriptDoc, error) {
	turns, ok := store.Snapshot(sessionID)
	if !ok {
		return nil, fmt.Errorf("export: session %q not found", sessionID)
	}

	doc := &TranscriptDoc{
		Session:    sessionID,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Turns:      make([]TurnExport, 0, len(turns)),
	}
	for _, turn := range turns {
		te := TurnExport{
			Role: string(turn.Role),
			Text: turn.Text(),
		}
		for _, part := range turn.Parts {
			if part.IsText() {
				continue
			}
			te.Attachments = append(te.Attachments, AttachmentExport{
				Name:      part.Name,
				MediaType: part.MediaType,
				Bytes:     len(part.Data),
			})
		}
		doc.Turns = append(doc.Turns, te)
	}
	return doc, nil
}

// WriteFile saves the document as indented JSON.
func (d *TranscriptDoc) WriteFile(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("export: write transcript: %w", err)
	}
	return nil
}

// ReadTranscript loads a document previously saved with WriteFile.
func ReadTranscript(path string) (*TranscriptDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: read transcript: %w", err)
	}
	var doc TranscriptDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("export: parse transcript: %w", err)
	}
	return &doc, nil
}

// Markdown re-renders a transcript as a readable document.
func (d *TranscriptDoc) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Conclave transcript\n\nSession `%s`, exported %s.\n", d.Session, d.ExportedAt)
	for _, turn := range d.Turns {
		fmt.Fprintf(&sb, "\n## %s\n\n", roleHeading(turn.Role))
		for _, att := range turn.Attachments {
			fmt.Fprintf(&sb, "> attached: %s (%s, %d bytes)\n>\n", att.Name, att.MediaType, att.Bytes)
		}
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			text = "(no text)"
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func roleHeading(role string) string {
	switch chat.Role(role) {
	case chat.RoleUser:
		return "User"
	case chat.RoleAgent:
		return "Conclave"
	default:
		return role
	}
}
