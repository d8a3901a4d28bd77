// Package submission encodes captured answers into the wire payload the
// gateway accepts. Mapping is pure: it never mutates its inputs and never
// touches the network; invalid answers are dropped and reported rather
// than failing the batch.
package submission

import (
	"github.com/TalentGate/candidate-session-service/internal/models"
)

// Drop describes one answer excluded from the batch.
type Drop struct {
	QuestionID string
	Reason     string
}

// MapAnswer encodes one answer per the section's variant. It returns nil
// plus a Drop when the answer violates its invariant: a ranked pair whose
// slots collide or reference unknown options, or a single choice whose
// selection is not one of the question's options.
func MapAnswer(section *models.Section, question *models.Question, answer models.Answer) (*models.WireAnswer, *Drop) {
	switch section.Type {
	case models.SectionRankedPair:
		pair := answer.RankedPair
		if answer.Kind != models.AnswerRankedPair || pair == nil {
			return nil, &Drop{QuestionID: question.ID, Reason: "answer variant does not match ranked-pair section"}
		}
		if pair.Most == pair.Least {
			return nil, &Drop{QuestionID: question.ID, Reason: "most and least reference the same option"}
		}
		if !question.HasOption(pair.Most) || !question.HasOption(pair.Least) {
			return nil, &Drop{QuestionID: question.ID, Reason: "ranked pair references an unknown option"}
		}
		return &models.WireAnswer{
			SectionID:     section.ID,
			QuestionID:    question.ID,
			MostOptionID:  pair.Most,
			LeastOptionID: pair.Least,
		}, nil

	default:
		choice := answer.SingleChoice
		if answer.Kind != models.AnswerSingleChoice || choice == nil {
			return nil, &Drop{QuestionID: question.ID, Reason: "answer variant does not match single-choice section"}
		}
		if !question.HasOption(choice.Selected) {
			return nil, &Drop{QuestionID: question.ID, Reason: "selection references an unknown option"}
		}
		return &models.WireAnswer{
			SectionID:        section.ID,
			QuestionID:       question.ID,
			SelectedOptionID: choice.Selected,
		}, nil
	}
}

// MapSection encodes every captured answer of a section in question order.
// Unanswered questions are skipped silently; invalid answers come back as
// drops for the caller to log.
func MapSection(section *models.Section, answers map[string]models.Answer) ([]models.WireAnswer, []Drop) {
	var wire []models.WireAnswer
	var drops []Drop

	for i := range section.Questions {
		question := &section.Questions[i]
		answer, ok := answers[question.ID]
		if !ok {
			continue
		}
		mapped, drop := MapAnswer(section, question, answer)
		if drop != nil {
			drops = append(drops, *drop)
			continue
		}
		wire = append(wire, *mapped)
	}
	return wire, drops
}
