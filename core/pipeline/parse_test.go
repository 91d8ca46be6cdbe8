package pipeline

import (
	"strings"
	"testing"

	"github.com/marensch/lorekeep/model"
)

// tok is a compact token spec for building test parses
type tok struct {
	text  string
	lemma string
	pos   string
	dep   string
	head  int
	ent   string
}

// buildParse constructs a ParsedDocument from token specs, computing
// byte offsets by locating each token in the text left to right
func buildParse(t *testing.T, documentID string, text string, sentences ...[]tok) *model.ParsedDocument {
	t.Helper()

	doc := &model.ParsedDocument{DocumentID: documentID, Text: text}
	cursor := 0

	for s, specs := range sentences {
		sentence := model.ParsedSentence{Index: s}
		for i, spec := range specs {
			start := strings.Index(text[cursor:], spec.text)
			if start < 0 {
				t.Fatalf("token %q not found in text after offset %d", spec.text, cursor)
			}
			start += cursor
			end := start + len(spec.text)
			cursor = end

			lemma := spec.lemma
			if lemma == "" {
				lemma = strings.ToLower(spec.text)
			}

			sentence.Tokens = append(sentence.Tokens, model.ParsedToken{
				Index: i,
				Text:  spec.text,
				Lemma: lemma,
				POS:   spec.pos,
				Dep:   spec.dep,
				Head:  spec.head,
				Start: start,
				End:   end,
				Ent:   spec.ent,
			})
		}
		if len(sentence.Tokens) > 0 {
			sentence.Start = sentence.Tokens[0].Start
			sentence.End = sentence.Tokens[len(sentence.Tokens)-1].End
		}
		doc.Sentences = append(doc.Sentences, sentence)
	}

	return doc
}

// sarahChenParse is the canonical merge-dedup fixture:
// "Sarah Chen graduated from Stanford. Sarah moved to San Francisco. She met Marcus."
func sarahChenParse(t *testing.T) *model.ParsedDocument {
	t.Helper()
	text := "Sarah Chen graduated from Stanford. Sarah moved to San Francisco. She met Marcus."
	return buildParse(t, "doc-1", text,
		[]tok{
			{text: "Sarah", pos: "PROPN", dep: "compound", head: 1, ent: "PERSON"},
			{text: "Chen", pos: "PROPN", dep: "nsubj", head: 2, ent: "PERSON"},
			{text: "graduated", lemma: "graduate", pos: "VERB", dep: "ROOT", head: 2},
			{text: "from", pos: "ADP", dep: "prep", head: 2},
			{text: "Stanford", pos: "PROPN", dep: "pobj", head: 3, ent: "ORG"},
			{text: ".", pos: "PUNCT", dep: "punct", head: 2},
		},
		[]tok{
			{text: "Sarah", pos: "PROPN", dep: "nsubj", head: 1, ent: "PERSON"},
			{text: "moved", lemma: "move", pos: "VERB", dep: "ROOT", head: 1},
			{text: "to", pos: "ADP", dep: "prep", head: 1},
			{text: "San", pos: "PROPN", dep: "compound", head: 4, ent: "GPE"},
			{text: "Francisco", pos: "PROPN", dep: "pobj", head: 2, ent: "GPE"},
			{text: ".", pos: "PUNCT", dep: "punct", head: 1},
		},
		[]tok{
			{text: "She", pos: "PRON", dep: "nsubj", head: 1},
			{text: "met", lemma: "meet", pos: "VERB", dep: "ROOT", head: 1},
			{text: "Marcus", pos: "PROPN", dep: "dobj", head: 1, ent: "PERSON"},
			{text: ".", pos: "PUNCT", dep: "punct", head: 1},
		},
	)
}
