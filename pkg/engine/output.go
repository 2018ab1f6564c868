package engine

// Output is one observable event pulled from the engine. The host
// switches on the concrete type: Text, Choices, Input or End.
type Output interface {
	isOutput()
}

// TextOutput is a rendered line of story text.
type TextOutput struct {
	Text string
}

// ChoiceItem is one selectable entry of a pending choice, addressed by
// its position in the presented list.
type ChoiceItem struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Text  string `json:"text"`
}

// ChoicesOutput asks the host to present options and call Choose.
type ChoicesOutput struct {
	PromptText string
	Items      []ChoiceItem
}

// InputOutput asks the host to collect a line of text and call
// SubmitInput. A blank submission falls back to DefaultText.
type InputOutput struct {
	PromptText  string
	DefaultText string
}

// EndOutput signals that the story has finished.
type EndOutput struct{}

func (TextOutput) isOutput()    {}
func (ChoicesOutput) isOutput() {}
func (InputOutput) isOutput()   {}
func (EndOutput) isOutput()     {}
