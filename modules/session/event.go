package session

import "neon-storyboard-server/modules/common/model"

// Event types pushed to websocket clients.
const (
	EventSceneUpdated       = "scene_updated"
	EventScenesReplaced     = "scenes_replaced"
	EventStepChanged        = "step_changed"
	EventNotice             = "notice"
	EventCredentialRequired = "credential_required"
	EventEDLReady           = "edl_ready"
)

// Message types accepted from websocket clients.
const (
	MessageCredential = "credential"
	MessagePing       = "ping"
)

// Event - 서버 -> 클라이언트 메시지
type Event struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	Step      model.Step    `json:"step,omitempty"`
	Scene     *model.Scene  `json:"scene,omitempty"`
	Scenes    []model.Scene `json:"scenes,omitempty"`
	Message   string        `json:"message,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

// ClientMessage - 클라이언트 -> 서버 메시지
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Key       string `json:"key,omitempty"`
}
