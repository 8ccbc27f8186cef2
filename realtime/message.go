package realtime

import "encoding/json"

// Phoenix 协议事件
const (
	EventJoin        = "phx_join"
	EventLeave       = "phx_leave"
	EventReply       = "phx_reply"
	EventClose       = "phx_close"
	EventError       = "phx_error"
	EventHeartbeat   = "heartbeat"
	EventAccessToken = "access_token"

	EventPostgresChanges = "postgres_changes"
	EventPresence        = "presence"
	EventPresenceState   = "presence_state"
	EventPresenceDiff    = "presence_diff"
	EventSystem          = "system"

	topicPhoenix = "phoenix"
	topicPrefix  = "realtime:"
)

// Message Phoenix 帧（vsn 1.0.0 为 JSON 对象）
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// PostgresChangesFilter 数据变更订阅条件
type PostgresChangesFilter struct {
	Event  string `json:"event"` // INSERT | UPDATE | DELETE | *
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"` // 例如 match_id=eq.<uuid>
}

// ChangeEvent 一次行变更
type ChangeEvent struct {
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            string          `json:"type"`
	CommitTimestamp string          `json:"commit_timestamp"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
}

// Decode 把新行解码到 v
func (e ChangeEvent) Decode(v interface{}) error {
	return json.Unmarshal(e.Record, v)
}

type joinReply struct {
	Status   string `json:"status"`
	Response struct {
		PostgresChanges []struct {
			ID int64 `json:"id"`
			PostgresChangesFilter
		} `json:"postgres_changes"`
		Reason string `json:"reason"`
	} `json:"response"`
}

type changesPayload struct {
	IDs  []int64     `json:"ids"`
	Data ChangeEvent `json:"data"`
}

// Presence 单个 key 下的 meta 列表
type Presence []map[string]interface{}

type presenceEntry struct {
	Metas Presence `json:"metas"`
}

type presenceDiff struct {
	Joins  map[string]presenceEntry `json:"joins"`
	Leaves map[string]presenceEntry `json:"leaves"`
}
