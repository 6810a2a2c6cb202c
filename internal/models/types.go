package models

// Rating is a user's feedback on a single AI response.
type Rating string

const (
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

// Valid reports whether r is one of the known rating values.
func (r Rating) Valid() bool {
	return r == RatingLike || r == RatingDislike
}

// Message represents one entry in the conversation sequence, either a user
// question or a provider response. Provider and Rating are only meaningful
// when IsAI is true.
type Message struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	IsAI     bool   `json:"isAi"`
	Provider string `json:"provider,omitempty"`
	Rating   Rating `json:"rating,omitempty"`
}

// UserQuestion is a distinct user submission event. ID matches the id of the
// user Message created for the same submission.
type UserQuestion struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// ProviderResponse is one provider's reply to a question.
type ProviderResponse struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

// RatingMap is the simpler persisted rating representation: message id to
// rating. Setting a new rating overwrites, there is no unset in this form.
type RatingMap map[string]Rating
