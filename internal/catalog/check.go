package catalog

import (
	"context"
	"fmt"
)

// Check loads every catalog and reports problems that would make items fail
// at dispatch time. It never touches the network.
func Check(ctx context.Context, f *Files) []error {
	var problems []error

	items, err := f.Items(ctx)
	if err != nil {
		return []error{err}
	}

	var polls map[uint32]Poll
	if f.PollPath != "" {
		all, err := f.Polls(ctx)
		if err != nil {
			problems = append(problems, err)
		} else {
			polls = make(map[uint32]Poll, len(all))
			for _, p := range all {
				polls[p.ID] = p
				if len(p.Answers) < MinPollAnswers {
					problems = append(problems, fmt.Errorf("poll %d: %w", p.ID, ErrTooFewAnswers))
				}
			}
		}
	}

	var quizzes map[uint32]Quiz
	if f.QuizPath != "" {
		all, err := f.Quizzes(ctx)
		if err != nil {
			problems = append(problems, err)
		} else {
			quizzes = make(map[uint32]Quiz, len(all))
			for _, q := range all {
				quizzes[q.ID] = q
				if q.GuildWithoutChannel() {
					problems = append(problems, fmt.Errorf("quiz %d: monitor_guild set without monitor_channel", q.ID))
				}
			}
		}
	}

	for _, it := range items {
		if it.PollID != nil {
			if _, ok := polls[*it.PollID]; !ok {
				problems = append(problems, fmt.Errorf("item %d: %w: id %d", it.ID, ErrPollNotFound, *it.PollID))
			}
			if len(it.Attachments) > 0 {
				problems = append(problems, fmt.Errorf("item %d: attachments are ignored when a poll is set", it.ID))
			}
		}
		if it.QuizID != nil {
			if _, ok := quizzes[*it.QuizID]; !ok {
				problems = append(problems, fmt.Errorf("item %d: %w: id %d", it.ID, ErrQuizNotFound, *it.QuizID))
			}
		}
	}
	return problems
}
