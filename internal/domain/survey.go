package domain

// SurveyAnswer is the single helpfulness answer a visitor gives after a report.
type SurveyAnswer string

const (
	AnswerVeryHelpful     SurveyAnswer = "very_helpful"
	AnswerHelpful         SurveyAnswer = "helpful"
	AnswerNeutral         SurveyAnswer = "neutral"
	AnswerNotHelpful      SurveyAnswer = "not_helpful"
	AnswerNotAtAllHelpful SurveyAnswer = "not_at_all_helpful"
)

// SurveyAnswers lists every accepted answer in display order.
var SurveyAnswers = []SurveyAnswer{
	AnswerVeryHelpful,
	AnswerHelpful,
	AnswerNeutral,
	AnswerNotHelpful,
	AnswerNotAtAllHelpful,
}

// Valid reports whether a is one of SurveyAnswers.
func (a SurveyAnswer) Valid() bool {
	for _, v := range SurveyAnswers {
		if a == v {
			return true
		}
	}
	return false
}

// SurveyResponse is immutable once written.
type SurveyResponse struct {
	ResponseID         string       `dynamodbav:"responseId" json:"responseId"`
	SessionID          string       `dynamodbav:"sessionId" json:"sessionId"`
	Response           SurveyAnswer `dynamodbav:"response" json:"response"`
	AdditionalComments string       `dynamodbav:"additionalComments,omitempty" json:"additionalComments,omitempty"`
	CreatedAt          int64        `dynamodbav:"createdAt" json:"createdAt"`
}
