package agent

import "github.com/odvcencio/repcoach/pkg/intent"

// User-facing texts that do not come from a tool or a model.
const (
	NoWorkoutText   = "There's no active workout to double yet. Ask me to create one first."
	FallbackText    = "I'm not sure how to help with that. Try asking me to create a workout or to double the one you have."
	ExceptionText   = "Something went wrong while I was working on that. Please try again."
	UnsupportedText = "I can't do that right now."

	greetingText = "Hi! Ask me for a workout, like \"create a 30 minute leg workout\"."
	farewellText = "Good luck with your training. See you next time!"
	thanksText   = "You're welcome! Let me know if you want to change anything."
	helpText     = "I can build a workout (\"make me a 45 minute chest workout\"), double your current one (\"double it\") and explain exercises (\"what is a deadlift\")."
)

func cannedText(name string) string {
	switch name {
	case intent.Greeting:
		return greetingText
	case intent.Farewell:
		return farewellText
	case intent.Thanks:
		return thanksText
	case intent.Help:
		return helpText
	}
	return ""
}
