package wire

import "strconv"

// Kind is the one-byte message-id every framed payload starts with.
type Kind byte

const (
	KindClient Kind = iota + 1
	KindClientConnected
	KindJobAnnouncement
	KindProxyJobAnnouncement
	KindJobRequest
	KindJobResponse
	KindIndexer
	KindVisitFile
	KindVisitFileResponse
	KindExit
	KindSubmit
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "Client"
	case KindClientConnected:
		return "ClientConnected"
	case KindJobAnnouncement:
		return "JobAnnouncement"
	case KindProxyJobAnnouncement:
		return "ProxyJobAnnouncement"
	case KindJobRequest:
		return "JobRequest"
	case KindJobResponse:
		return "JobResponse"
	case KindIndexer:
		return "Indexer"
	case KindVisitFile:
		return "VisitFile"
	case KindVisitFileResponse:
		return "VisitFileResponse"
	case KindExit:
		return "Exit"
	case KindSubmit:
		return "Submit"
	}
	panic("unknown Kind " + strconv.Itoa(int(k)))
}
