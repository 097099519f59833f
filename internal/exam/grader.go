package exam

import "github.com/pavelanni/schoolexam/internal/model"

// Grade compares a selected value with the question's answer key. The match
// is exact and case-sensitive; a correct answer earns one mark.
func Grade(q model.Question, selected string) (correct bool, marks float64) {
	if selected == q.Answer {
		return true, 1
	}
	return false, 0
}

// Total sums the marks of graded answers.
func Total(answers []model.Answer) float64 {
	var total float64
	for _, a := range answers {
		total += a.Marks
	}
	return total
}
