package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// EventType names an observable ledger event.
type EventType string

const (
	EventSurveyCreated       EventType = "survey-created"
	EventSurveyPaused        EventType = "survey-paused"
	EventResponseSubmitted   EventType = "response-submitted"
	EventDecryptionRequested EventType = "decryption-requested"
	EventResponseRevealed    EventType = "response-revealed"
)

// Event is an outbound notification for external indexers and UIs. The
// ledger appends events to subscriber channels; it never calls into
// consumer code.
type Event struct {
	Type          EventType            `json:"type"`
	SurveyID      SurveyID             `json:"survey_id"`
	Title         string               `json:"title,omitempty"`
	Creator       Principal            `json:"creator,omitempty"`
	Respondent    Principal            `json:"respondent,omitempty"`
	QuestionCount int                  `json:"question_count,omitempty"`
	AnswerCount   int                  `json:"answer_count,omitempty"`
	CorrelationID oracle.CorrelationID `json:"correlation_id,omitempty"`
	Plaintexts    []int64              `json:"plaintexts,omitempty"`
	At            time.Time            `json:"at"`
}

// Notifier fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses events rather than stalling the ledger.
type Notifier struct {
	mu          sync.Mutex
	subscribers []chan Event
	log         *slog.Logger
}

// NewNotifier creates a notifier logging drops to log.
func NewNotifier(log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{log: log}
}

// Subscribe returns a channel receiving all subsequent events. The channel
// is buffered; events are dropped when the buffer is full.
func (n *Notifier) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	n.mu.Lock()
	n.subscribers = append(n.subscribers, ch)
	n.mu.Unlock()
	return ch
}

// Publish delivers ev to every subscriber without blocking.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- ev:
		default:
			n.log.Warn("dropping event for slow subscriber", "type", ev.Type, "surveyID", ev.SurveyID)
		}
	}
}
