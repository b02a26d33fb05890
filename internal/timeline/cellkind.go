package timeline

import (
	"fmt"

	"github.com/tmarsal/parley/internal/store"
)

// CellKind selects the renderer for a message row.
type CellKind int

const (
	CellText CellKind = iota
	CellImage
	CellVideo
	CellAudio
	CellFile
	CellLocation
	CellPing
	CellUnknown
	CellSystemMembership
	CellSystemRename
	CellSystemCall
	CellSystemDeviceTrust
	CellSystemDecryptFailed
)

func (k CellKind) String() string {
	switch k {
	case CellText:
		return "text"
	case CellImage:
		return "image"
	case CellVideo:
		return "video"
	case CellAudio:
		return "audio"
	case CellFile:
		return "file"
	case CellLocation:
		return "location"
	case CellPing:
		return "ping"
	case CellUnknown:
		return "unknown"
	case CellSystemMembership:
		return "system/membership"
	case CellSystemRename:
		return "system/rename"
	case CellSystemCall:
		return "system/call"
	case CellSystemDeviceTrust:
		return "system/device_trust"
	case CellSystemDecryptFailed:
		return "system/decrypt_failed"
	}
	return fmt.Sprintf("CellKind(%d)", int(k))
}

// CellKindFor maps a message to its cell kind. The mapping is total over
// the closed kind and subkind sets; a value outside them means a missing
// table entry, not bad input, and panics.
func CellKindFor(m store.Message) CellKind {
	switch m.Kind {
	case store.KindText:
		return CellText
	case store.KindImage:
		return CellImage
	case store.KindVideo:
		return CellVideo
	case store.KindAudio:
		return CellAudio
	case store.KindFile:
		return CellFile
	case store.KindLocation:
		return CellLocation
	case store.KindPing:
		return CellPing
	case store.KindUnknown:
		return CellUnknown
	case store.KindSystem:
		switch m.Subkind {
		case store.SubkindMemberJoin, store.SubkindMemberLeave:
			return CellSystemMembership
		case store.SubkindRename:
			return CellSystemRename
		case store.SubkindCallStarted, store.SubkindCallEnded:
			return CellSystemCall
		case store.SubkindDeviceTrust:
			return CellSystemDeviceTrust
		case store.SubkindDecryptFailed:
			return CellSystemDecryptFailed
		}
		panic(fmt.Sprintf("timeline: no cell kind for system subkind %q", m.Subkind))
	}
	panic(fmt.Sprintf("timeline: no cell kind for message kind %q", m.Kind))
}
