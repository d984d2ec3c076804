package model

// BankImport is the top-level JSON structure for seeding a local question bank.
type BankImport struct {
	Exams []ExamImport `json:"exams"`
}

// ExamImport is one exam with its courses.
type ExamImport struct {
	Name    string         `json:"name"`
	Courses []CourseImport `json:"courses"`
}

// CourseImport is one course with its chapters.
type CourseImport struct {
	Name     string          `json:"name"`
	Chapters []ChapterImport `json:"chapters"`
}

// ChapterImport is one chapter with its topics.
type ChapterImport struct {
	Name   string        `json:"name"`
	Topics []TopicImport `json:"topics"`
}

// TopicImport is one topic with its questions.
type TopicImport struct {
	Name      string           `json:"name"`
	Questions []QuestionImport `json:"questions"`
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Statement string             `json:"statement"`
	Type      QuestionType       `json:"type"`
	Options   Optional[[]string] `json:"options"`
	Answer    Optional[string]   `json:"answer"`
	Solution  Optional[string]   `json:"solution"`
}

// QuestionCount returns the number of questions in the bank.
func (b BankImport) QuestionCount() int {
	n := 0
	for _, e := range b.Exams {
		for _, c := range e.Courses {
			for _, ch := range c.Chapters {
				for _, t := range ch.Topics {
					n += len(t.Questions)
				}
			}
		}
	}
	return n
}
