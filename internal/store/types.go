package store

// Kind classifies a message. The set is closed: every message persisted by
// the client carries exactly one of these values.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindFile     Kind = "file"
	KindLocation Kind = "location"
	KindPing     Kind = "ping"
	KindSystem   Kind = "system"
	KindUnknown  Kind = "unknown"
)

// SystemSubkind refines KindSystem messages. Empty for all other kinds.
type SystemSubkind string

const (
	SubkindNone          SystemSubkind = ""
	SubkindMemberJoin    SystemSubkind = "member_join"
	SubkindMemberLeave   SystemSubkind = "member_leave"
	SubkindRename        SystemSubkind = "rename"
	SubkindCallStarted   SystemSubkind = "call_started"
	SubkindCallEnded     SystemSubkind = "call_ended"
	SubkindDeviceTrust   SystemSubkind = "device_trust"
	SubkindDecryptFailed SystemSubkind = "decrypt_failed"
)

// ParseKind maps a wire kind string onto the closed kind set. Values the
// client does not know become KindUnknown.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindText, KindImage, KindVideo, KindAudio, KindFile,
		KindLocation, KindPing, KindSystem, KindUnknown:
		return k
	}
	return KindUnknown
}

// ParseSubkind maps a wire subkind string onto the closed subkind set.
// The second return reports whether the value was recognized; an empty
// subkind on a system message is not.
func ParseSubkind(s string) (SystemSubkind, bool) {
	switch sk := SystemSubkind(s); sk {
	case SubkindMemberJoin, SubkindMemberLeave, SubkindRename,
		SubkindCallStarted, SubkindCallEnded, SubkindDeviceTrust,
		SubkindDecryptFailed:
		return sk, true
	}
	return SubkindNone, false
}

// Conversation is a synced conversation.
type Conversation struct {
	ID                 string
	Title              string
	IsGroup            bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is a synced message. MsgID is the server-assigned identity,
// unique per conversation; Timestamp is the server timestamp in unix
// milliseconds and defines the (descending) display order.
type Message struct {
	ID             int64
	ConversationID string
	MsgID          string
	SenderID       string
	SenderName     string
	Body           string
	Kind           Kind
	Subkind        SystemSubkind
	FromMe         bool
	Deleted        bool
	Status         string
	Timestamp      int64
}

// OutboxEntry is a pending outgoing message.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	Body           string
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
