package sync

// StartSyncPayload optionally caps how many messages a run may process,
// mostly useful for trying a sync against a large channel.
type StartSyncPayload struct {
	Limit int `json:"limit,omitempty" validate:"min=0,max=10000"`
}

// TaskResponse is the poll surface of a running or finished task. Message is
// the rendered append-only history; callers must not assume how many lines
// it holds.
type TaskResponse struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	Result    interface{} `json:"result,omitempty"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}
