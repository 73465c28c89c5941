package challenge

import "github.com/eliteGoblin/focusd/focus_guard/internal/domain"

func defaultTemplates() []domain.Challenge {
	return []domain.Challenge{
		// Math
		{
			ID:               "math_1",
			Type:             domain.ChallengeMath,
			Question:         "What is 17 × 23?",
			CorrectAnswer:    domain.NumberAnswer(391),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 60,
		},
		{
			ID:               "math_2",
			Type:             domain.ChallengeMath,
			Question:         "If a train travels 120 km in 1.5 hours, what is its speed in km/h?",
			CorrectAnswer:    domain.NumberAnswer(80),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 90,
		},
		{
			ID:               "math_3",
			Type:             domain.ChallengeMath,
			Question:         "What is the square root of 144?",
			CorrectAnswer:    domain.NumberAnswer(12),
			Difficulty:       domain.DifficultyEasy,
			TimeLimitSeconds: 30,
		},
		{
			ID:               "math_4",
			Type:             domain.ChallengeMath,
			Question:         "What is 2^8 (2 to the power of 8)?",
			CorrectAnswer:    domain.NumberAnswer(256),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 45,
		},

		// Science
		{
			ID:               "science_1",
			Type:             domain.ChallengeScience,
			Question:         "What is the chemical symbol for gold?",
			CorrectAnswer:    domain.TextAnswer("Au"),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 30,
		},
		{
			ID:               "science_2",
			Type:             domain.ChallengeScience,
			Question:         "How many bones are in an adult human body?",
			CorrectAnswer:    domain.NumberAnswer(206),
			Difficulty:       domain.DifficultyHard,
			TimeLimitSeconds: 60,
		},
		{
			ID:               "science_3",
			Type:             domain.ChallengeScience,
			Question:         "What gas makes up approximately 78% of Earth's atmosphere?",
			CorrectAnswer:    domain.TextAnswer("nitrogen"),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 45,
		},

		// Puzzles
		{
			ID:   "puzzle_1",
			Type: domain.ChallengePuzzle,
			Question: "I am not alive, but I grow; I don't have lungs, but I need air; " +
				"I don't have a mouth, but water kills me. What am I?",
			CorrectAnswer:    domain.TextAnswer("fire"),
			Difficulty:       domain.DifficultyHard,
			TimeLimitSeconds: 120,
		},
		{
			ID:               "puzzle_2",
			Type:             domain.ChallengePuzzle,
			Question:         "What comes next in this sequence: 2, 6, 12, 20, 30, ?",
			CorrectAnswer:    domain.NumberAnswer(42),
			Difficulty:       domain.DifficultyHard,
			TimeLimitSeconds: 90,
		},
		{
			ID:   "puzzle_3",
			Type: domain.ChallengePuzzle,
			Question: "A man lives on the 20th floor of an apartment building. Every morning he " +
				"takes the elevator down to the ground floor. When he comes home, he takes the " +
				"elevator to the 10th floor and walks the rest of the way... except on rainy days, " +
				"when he takes the elevator all the way to the 20th floor. Why?",
			CorrectAnswer:    domain.TextAnswer("he is too short to reach the button for the 20th floor"),
			Difficulty:       domain.DifficultyHard,
			TimeLimitSeconds: 180,
		},

		// Riddles
		{
			ID:               "riddle_1",
			Type:             domain.ChallengeRiddle,
			Question:         "The more you take, the more you leave behind. What am I?",
			CorrectAnswer:    domain.TextAnswer("footsteps"),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 60,
		},
		{
			ID:               "riddle_2",
			Type:             domain.ChallengeRiddle,
			Question:         "What has keys but no locks, space but no room, and you can enter but not go inside?",
			CorrectAnswer:    domain.TextAnswer("keyboard"),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 90,
		},

		// Multiple choice
		{
			ID:               "mc_1",
			Type:             domain.ChallengePuzzle,
			Question:         `Which planet is known as the "Red Planet"?`,
			Options:          []string{"Venus", "Mars", "Jupiter", "Saturn"},
			CorrectAnswer:    domain.TextAnswer("Mars"),
			Difficulty:       domain.DifficultyEasy,
			TimeLimitSeconds: 30,
		},
		{
			ID:               "mc_2",
			Type:             domain.ChallengeScience,
			Question:         "What is the powerhouse of the cell?",
			Options:          []string{"Nucleus", "Ribosome", "Mitochondria", "Endoplasmic Reticulum"},
			CorrectAnswer:    domain.TextAnswer("Mitochondria"),
			Difficulty:       domain.DifficultyMedium,
			TimeLimitSeconds: 45,
		},
	}
}
