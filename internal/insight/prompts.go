package insight

import (
	"github.com/BTreeMap/JournalPipe/internal/genai"
	"github.com/BTreeMap/JournalPipe/internal/models"
)

const (
	entryMaxTokens      = 900
	entryTemperature    = 0.7
	overviewMaxTokens   = 500
	overviewTemperature = 0.3
)

const entrySystemPrompt = `You are a world renowned life coach and journaling expert who provides insights based on journal entries. Your response is casual, as if you were talking to a friend. Never refer to the person as "the writer", say "you" instead.
Please format your response in the following way:
1. Key Observations:
   - [Observation 1]
   - [Observation 2]
   - [Observation 3]

2. Potential Patterns:
   - [Pattern 1]
   - [Pattern 2]

3. Actionable Steps:
   - [Step 1]
   - [Step 2]

4. Further Thoughts, Reflections, and Recommendations:
   - [Thought 1]
   - [Thought 2]
   - [Thought 3]

5. Questions that could help you journey further:
   - [Question 1]
   - [Question 2]
   - [Question 3]`

const entryUserPrompt = "Analyze the following journal entry and provide insightful observations about the writer's thoughts, feelings, and behaviors. Also, suggest one or two actionable steps the writer could take based on this entry. Here's the entry:\n\n"

const overviewSystemPrompt = "You are an AI assistant that provides insights based on journal entries."

const overviewUserPrompt = "Please provide insights and patterns based on these journal entries:\n\n"

// buildRequest assembles the model request for mode.
func buildRequest(mode models.InsightMode, text string) (genai.Request, error) {
	switch mode {
	case models.InsightModeEntry:
		return genai.Request{
			SystemPrompt: entrySystemPrompt,
			UserPrompt:   entryUserPrompt + text + "\n",
			MaxTokens:    entryMaxTokens,
			Temperature:  entryTemperature,
		}, nil
	case models.InsightModeOverview:
		return genai.Request{
			SystemPrompt: overviewSystemPrompt,
			UserPrompt:   overviewUserPrompt + text,
			MaxTokens:    overviewMaxTokens,
			Temperature:  overviewTemperature,
		}, nil
	default:
		return genai.Request{}, models.ErrInvalidInsightMode
	}
}
