package translator

import "strings"

// Turn is the transcript of one completed exchange.
type Turn struct {
	Input  string
	Output string
}

// IsEmpty reports whether neither side produced any text.
func (t Turn) IsEmpty() bool {
	return t.Input == "" && t.Output == ""
}

// TurnAccumulator collects transcript fragments between turn boundaries.
// It is owned by the dispatch loop and is not safe for concurrent use.
type TurnAccumulator struct {
	input  strings.Builder
	output strings.Builder
}

// AddInput appends a fragment of the speaker's transcript.
func (a *TurnAccumulator) AddInput(text string) {
	a.input.WriteString(text)
}

// AddOutput appends a fragment of the translated transcript.
func (a *TurnAccumulator) AddOutput(text string) {
	a.output.WriteString(text)
}

// Input returns the input text accumulated so far.
func (a *TurnAccumulator) Input() string {
	return a.input.String()
}

// Output returns the output text accumulated so far.
func (a *TurnAccumulator) Output() string {
	return a.output.String()
}

// Complete returns the accumulated turn and resets both transcripts.
func (a *TurnAccumulator) Complete() Turn {
	turn := Turn{Input: a.input.String(), Output: a.output.String()}
	a.input.Reset()
	a.output.Reset()
	return turn
}
