// Package admission serializes every queue-membership write. Producers push
// Messages onto a Channel; a single Processor drains it on the scheduler thread.
package admission

// Message asks to enroll one player into the first poppable of an ordered list of queues.
// Channels store and hand out copies, so a Message is never mutated once enqueued.
type Message struct {
	PlayerID    int64    `json:"player_id"`
	PlayerName  string   `json:"player_name"`
	QueueIDs    []string `json:"queue_ids"`
	PrintStatus bool     `json:"print_status"`
}

func NewMessage(playerID int64, playerName string, queueIDs []string, printStatus bool) Message {
	return Message{
		PlayerID:    playerID,
		PlayerName:  playerName,
		QueueIDs:    append([]string(nil), queueIDs...),
		PrintStatus: printStatus,
	}
}

func (m Message) clone() Message {
	m.QueueIDs = append([]string(nil), m.QueueIDs...)
	return m
}
