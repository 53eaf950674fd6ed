package chat

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Part carries content within a turn. Exactly one of Text or Data is set:
// text parts hold prose, data parts hold attachment bytes with their media
// type and original filename.
type Part struct {
	Text      string `json:"text,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Name      string `json:"name,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// IsText reports whether the part carries prose rather than bytes.
func (p Part) IsText() bool {
	return p.Data == nil
}

// NewTextPart creates a Part with text content.
func NewTextPart(text string) Part {
	return Part{Text: text, MediaType: "text/plain"}
}

// NewFilePart creates a Part carrying file bytes.
func NewFilePart(name, mediaType string, data []byte) Part {
	return Part{Data: data, Name: name, MediaType: mediaType}
}

// Turn is one entry in a conversation: who spoke and what they said.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates the text parts of the turn, in order.
func (t Turn) Text() string {
	var out string
	for _, p := range t.Parts {
		if p.IsText() {
			out += p.Text
		}
	}
	return out
}

// UserTurn builds the turn for one submission: the attachment part, if any,
// precedes the query text.
func UserTurn(query string, att *Attachment) Turn {
	var parts []Part
	if att != nil {
		parts = append(parts, NewFilePart(att.Name, att.MediaType, att.Data))
	}
	parts = append(parts, NewTextPart(query))
	return Turn{Role: RoleUser, Parts: parts}
}

// AgentTurn builds a single-text-part agent turn.
func AgentTurn(text string) Turn {
	return Turn{Role: RoleAgent, Parts: []Part{NewTextPart(text)}}
}

// CopyTurns returns a deep copy of the given turns. Part byte slices are
// independently copied so neither side can mutate the other.
func CopyTurns(src []Turn) []Turn {
	if src == nil {
		return nil
	}
	dst := make([]Turn, len(src))
	for i, t := range src {
		dst[i] = copyTurn(t)
	}
	return dst
}

func copyTurn(src Turn) Turn {
	dst := src
	if src.Parts != nil {
		dst.Parts = make([]Part, len(src.Parts))
		for i, p := range src.Parts {
			dst.Parts[i] = copyPart(p)
		}
	}
	return dst
}

func copyPart(src Part) Part {
	dst := src
	if src.Data != nil {
		dst.Data = make([]byte, len(src.Data))
		copy(dst.Data, src.Data)
	}
	return dst
}
