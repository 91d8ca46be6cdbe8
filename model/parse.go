package model

import "strings"

// ParsedToken is one token of the validated parse representation.
// Head is the sentence-local index of the dependency head; the root token
// points at itself. Ent is the named-entity tag if any, empty otherwise.
type ParsedToken struct {
	Index int    `json:"i"`
	Text  string `json:"text"`
	Lemma string `json:"lemma"`
	POS   string `json:"pos"`
	Tag   string `json:"tag"`
	Dep   string `json:"dep"`
	Head  int    `json:"head"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Ent   string `json:"ent"`
}

// IsCapitalized reports whether the token text starts with an upper-case letter
func (t *ParsedToken) IsCapitalized() bool {
	if t.Text == "" {
		return false
	}
	first := t.Text[:1]
	return first != strings.ToLower(first)
}

// ParsedSentence is one sentence of the validated parse representation.
// Start and End are byte offsets into the document text.
type ParsedSentence struct {
	Index  int           `json:"sentence_index"`
	Start  int           `json:"start"`
	End    int           `json:"end"`
	Tokens []ParsedToken `json:"tokens"`
}

// ParsedDocument is the validated internal representation of the
// linguistic-annotation collaborator's response. Internal stages operate
// only on this representation, never on the raw collaborator payload.
type ParsedDocument struct {
	DocumentID string           `json:"document_id"`
	Text       string           `json:"text"`
	Sentences  []ParsedSentence `json:"sentences"`
}

// CorefLink binds a pronoun or partial mention to a previously introduced
// entity within the same document
type CorefLink struct {
	Canonical string `json:"canonical"`
	Mention   string `json:"mention"`
	Span      Span   `json:"span"`
}
