package mqtt

import "strings"

// Model events published under a model's topic.
const (
	EventFitted  = "fitted"
	EventDeleted = "deleted"
	EventReports = "reports"
	EventStop    = "stop"
)

const modelsSegment = "models"

// Topics lays out the topic tree of one deployment:
//
//	<prefix>/models/<id>/<event>
//	<prefix>/clients/<client_id>/status
type Topics struct {
	prefix string
}

func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.Trim(prefix, "/")}
}

// Model returns the topic of a model event.
func (t Topics) Model(id, event string) string {
	return t.join(modelsSegment, id, event)
}

func (t Topics) Reports(id string) string { return t.Model(id, EventReports) }

// StopFilter matches the stop topic of every model.
func (t Topics) StopFilter() string { return t.Model("+", EventStop) }

func (t Topics) Status(clientID string) string {
	return t.join("clients", clientID, "status")
}

// ParseModel splits a model event topic into the model id and the event.
// Topics outside the tree, or with an id spanning several levels, are
// rejected.
func (t Topics) ParseModel(topic string) (id, event string, ok bool) {
	rest, ok := strings.CutPrefix(topic, t.join(modelsSegment)+"/")
	if !ok {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], parts[1], true
}

func (t Topics) join(levels ...string) string {
	if t.prefix != "" {
		levels = append([]string{t.prefix}, levels...)
	}

	return strings.Join(levels, "/")
}
