package model

import (
	"encoding/json"
)

type (
	ChatMessage struct {
		EventID   string `json:"id"`
		Text      string `json:"text"`
		CreatedAt int64  `json:"created_at"`
		Sender    string `json:"sender"`
	}

	// Attachment is the JSON body of a chat message that points at an
	// encrypted blob instead of carrying text.
	Attachment struct {
		Type          string `json:"type"`
		URL           string `json:"blossom_url"`
		Key           string `json:"decryption_key,omitempty"`
		Filename      string `json:"filename"`
		MimeType      string `json:"mime_type"`
		OriginalSize  int64  `json:"original_size,omitempty"`
		EncryptedSize int64  `json:"encrypted_size,omitempty"`
	}
)

const (
	AttachmentFile  = "file_encrypted"
	AttachmentImage = "image_encrypted"
)

// ParseAttachment recognises attachment messages; plain text returns false.
func ParseAttachment(text string) (*Attachment, bool) {
	if len(text) == 0 || text[0] != '{' {
		return nil, false
	}
	var a Attachment
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return nil, false
	}
	if (a.Type != AttachmentFile && a.Type != AttachmentImage) || a.URL == "" {
		return nil, false
	}
	return &a, true
}
