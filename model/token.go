package model

// TokenOccurrence is one observed instance of a token in a document.
// Transient: produced once per document scan and folded into token
// statistics before extraction runs.
type TokenOccurrence struct {
	Lower                string `json:"lower"`
	Capitalized          bool   `json:"capitalized"`
	SentenceInitial      bool   `json:"sentence_initial"`
	StandaloneHead       bool   `json:"standalone_head"`
	EmbeddedInProperName bool   `json:"embedded_in_proper_name"`
}

// TokenInfo aggregates per-lowercase-token counts across a corpus scan.
// Counters only ever grow; AlwaysEmbeddedInProperName starts true and is
// cleared permanently by the first counter-example.
type TokenInfo struct {
	Total                      int  `json:"total"`
	LowercaseCount             int  `json:"lowercase_count"`
	CapitalizedCount           int  `json:"capitalized_count"`
	StandaloneCapitalizedCount int  `json:"standalone_capitalized_count"`
	AlwaysEmbeddedInProperName bool `json:"always_embedded_in_proper_name"`
}
