package domain

// Quiz is immutable content owned outside the live session coordinator.
type Quiz struct {
	Id        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	PlayCount int        `json:"-"`
}

type Question struct {
	Text     string   `json:"text"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Answers  []string `json:"answers"`
}

func (q Quiz) TotalQuestions() int {
	return len(q.Questions)
}
