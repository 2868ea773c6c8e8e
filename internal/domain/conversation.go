package domain

// Message is a single journaled conversation turn.
type Message struct {
	PK             string
	SK             string
	ConversationID string
	Text           string
	Answer         string
	Intent         string
	Action         string
	Status         string
	TTL            int64
}

// ConversationMeta stores aggregate conversation state.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	LastActivity   string
	Turns          int
	TTL            int64
}

// JournalEntry is what the orchestrator hands to the journal after a
// completed final utterance.
type JournalEntry struct {
	ConversationID string
	Utterance      string
	Reply          string
	Intent         string
	Action         string
	Turns          int
}
