package model

// EventStatusChange is emitted whenever an app status is written optimistically.
const EventStatusChange = "status_change"

// EventData is the payload of an app notification.
type EventData struct {
	AppUrn    AppUrn    `json:"appUrn"`
	AppStatus AppStatus `json:"appStatus,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Event is a status notification fanned out to observers.
type Event struct {
	Type  string    `json:"type"`
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// StatusChangeEvent builds a status_change notification.
func StatusChangeEvent(urn AppUrn, status AppStatus) Event {
	return Event{Type: "app", Event: EventStatusChange, Data: EventData{AppUrn: urn, AppStatus: status}}
}

// SuccessEvent builds an <op>_success notification.
func SuccessEvent(op string, urn AppUrn, status AppStatus) Event {
	return Event{Type: "app", Event: op + "_success", Data: EventData{AppUrn: urn, AppStatus: status}}
}

// ErrorEvent builds an <op>_error notification.
func ErrorEvent(op string, urn AppUrn, status AppStatus, message string) Event {
	return Event{Type: "app", Event: op + "_error", Data: EventData{AppUrn: urn, AppStatus: status, Error: message}}
}
