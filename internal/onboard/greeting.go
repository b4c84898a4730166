package onboard

import "fmt"

const greetingFormat = `Hi %s, welcome to Plura AI! 🎉👋

I'm your onboarding assistant, here to guide you through every step.
I see your email is %s.📧

Let’s make this journey smooth and fun! If you have any questions, I’m just a message away🚀.
Ready to dive in? Let’s go!🏄‍♂️`

// Greeting composes the personalized onboarding greeting. ok is false
// when no identity is available, in which case the text is empty and
// the caller falls back to the unpersonalized reply.
func Greeting(name, email string) (text string, ok bool) {
	if name == "" || email == "" {
		return "", false
	}
	return fmt.Sprintf(greetingFormat, name, email), true
}
