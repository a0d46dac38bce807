package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// Label field names usable in Filters.
const (
	LabelFieldID         = "id"
	LabelFieldQuestion   = "question"
	LabelFieldAnswer     = "answer"
	LabelFieldOrigin     = "origin"
	LabelFieldDocumentID = "document_id"
	LabelFieldModelID    = "model_id"
)

// Label is a relevance judgment for a question/answer pair.
//
// Two labels are equal when every judgment field matches. ID, CreatedAt and
// UpdatedAt are bookkeeping and take part in neither Equal nor Hash.
type Label struct {
	// ID is the unique identifier within a store. Generated when empty.
	ID string `json:"id"`

	// Question is the question (or query) used to find answers.
	Question string `json:"question"`

	// Answer is the answer string.
	Answer string `json:"answer"`

	// IsCorrectAnswer marks the sample as positive or negative.
	IsCorrectAnswer bool `json:"is_correct_answer"`

	// IsCorrectDocument tells, for a negative sample, whether the returned
	// document was still the correct one.
	IsCorrectDocument bool `json:"is_correct_document"`

	// Origin is the source of the label, e.g. "user-feedback".
	Origin string `json:"origin"`

	// DocumentID references the answer document without owning it.
	DocumentID string `json:"document_id,omitempty"`

	// OffsetStartInDoc is the answer start offset in the document.
	OffsetStartInDoc *int `json:"offset_start_in_doc,omitempty"`

	// NoAnswer marks the question as unanswerable.
	NoAnswer *bool `json:"no_answer,omitempty"`

	// ModelID is the model used for the prediction, for user feedback.
	ModelID *int `json:"model_id,omitempty"`

	// CreatedAt is when the label was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the label was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLabel returns l with a freshly generated ID when none was supplied.
func NewLabel(l Label) Label {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return l
}

// labelKey holds exactly the fields compared by Equal and hashed by Hash.
type labelKey struct {
	Question          string `json:"q"`
	Answer            string `json:"a"`
	IsCorrectAnswer   bool   `json:"ca"`
	IsCorrectDocument bool   `json:"cd"`
	Origin            string `json:"o"`
	DocumentID        string `json:"d"`
	OffsetStartInDoc  *int   `json:"off"`
	NoAnswer          *bool  `json:"na"`
	ModelID           *int   `json:"m"`
}

// key returns the canonical encoding of the compared fields.
func (l Label) key() string {
	encoded, err := json.Marshal(labelKey{
		Question:          l.Question,
		Answer:            l.Answer,
		IsCorrectAnswer:   l.IsCorrectAnswer,
		IsCorrectDocument: l.IsCorrectDocument,
		Origin:            l.Origin,
		DocumentID:        l.DocumentID,
		OffsetStartInDoc:  l.OffsetStartInDoc,
		NoAnswer:          l.NoAnswer,
		ModelID:           l.ModelID,
	})
	if err != nil {
		// Only strings, bools and ints are encoded.
		panic(fmt.Sprintf("encoding label key: %v", err))
	}
	return string(encoded)
}

// Equal reports whether both labels carry the same judgment.
func (l Label) Equal(other Label) bool {
	return l.key() == other.key()
}

// Hash returns a hash consistent with Equal.
func (l Label) Hash() uint64 {
	return murmur3.Sum64([]byte(l.key()))
}

// Field returns the string rendering of a filterable label field.
func (l Label) Field(name string) (any, bool) {
	switch name {
	case LabelFieldID:
		return l.ID, true
	case LabelFieldQuestion:
		return l.Question, true
	case LabelFieldAnswer:
		return l.Answer, true
	case LabelFieldOrigin:
		return l.Origin, true
	case LabelFieldDocumentID:
		return l.DocumentID, l.DocumentID != ""
	case LabelFieldModelID:
		if l.ModelID == nil {
			return nil, false
		}
		return *l.ModelID, true
	default:
		return nil, false
	}
}

// DeduplicateLabels drops labels equal to an earlier one, keeping the first
// occurrence and the input order.
func DeduplicateLabels(labels []Label) []Label {
	seen := make(map[string]struct{}, len(labels))
	out := make([]Label, 0, len(labels))
	for i := range labels {
		k := labels[i].key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, labels[i])
	}
	return out
}
