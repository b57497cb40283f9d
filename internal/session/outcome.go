package session

import "github.com/MrWong99/scriptvox/pkg/types"

// Messages reported on terminal turns.
const (
	MessageExhausted = "End of script"
	MessageEnded     = "Conversation ended by user"
)

// Outcome is the result of one speak-and-listen turn.
type Outcome struct {
	BotID string

	// State is the last state the turn reached: StateExhausted when nothing
	// was spoken, StateAdvancing when a reply was classified.
	State State

	Transcript     string
	Classification types.Classification

	PreviousLine int
	CurrentLine  int

	// NextLine is the script line the bot will speak on the next turn, or nil
	// when the conversation is over.
	NextLine *string

	Done    bool
	Ended   bool
	Message string
}

// Status is a read-only view of a bot's position.
type Status struct {
	BotID       string  `json:"botId"`
	Name        string  `json:"name,omitempty"`
	Voice       string  `json:"voice"`
	IsActive    bool    `json:"isActive"`
	IsArchived  bool    `json:"isArchived"`
	CurrentLine int     `json:"currentLine"`
	TotalLines  int     `json:"totalLines"`
	Line        *string `json:"line"`
	Done        bool    `json:"done"`
}
