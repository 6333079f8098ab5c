package llms

type PromptOptions struct {
	// Instructions overrides the client's default system prompt.
	Instructions string
	// Stream is invoked for every response chunk as it arrives.
	Stream func(chunk string)
}

type PromptOption func(*PromptOptions)

func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) {
		o.Instructions = instructions
	}
}

func WithStream(callback func(chunk string)) PromptOption {
	return func(o *PromptOptions) {
		o.Stream = callback
	}
}
