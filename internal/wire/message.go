package wire

import (
	"encoding/json"
	"fmt"

	"github.com/rosrad/rtags/internal/unit"
)

// Message is anything that can be framed onto a Conn. Payload
// encoding is JSON.
type Message interface {
	Kind() Kind
}

// Encode frames m as [1-byte kind][json payload], ready for Conn.Send.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", m.Kind(), err)
	}
	buf := make([]byte, 1+len(body))
	buf[0] = byte(m.Kind())
	copy(buf[1:], body)
	return buf, nil
}

// Decode reads the leading Kind byte and unmarshals the remainder into
// a concrete Message. An unknown kind is an error the caller should
// log and drop the connection over.
func Decode(payload []byte) (Message, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("wire: empty payload")
	}
	kind := Kind(payload[0])
	body := payload[1:]

	var m Message
	switch kind {
	case KindClient:
		m = &ClientMessage{}
	case KindClientConnected:
		m = &ClientConnectedMessage{}
	case KindJobAnnouncement:
		m = &JobAnnouncementMessage{}
	case KindProxyJobAnnouncement:
		m = &ProxyJobAnnouncementMessage{}
	case KindJobRequest:
		m = &JobRequestMessage{}
	case KindJobResponse:
		m = &JobResponseMessage{}
	case KindIndexer:
		m = &IndexerMessage{}
	case KindVisitFile:
		m = &VisitFileMessage{}
	case KindVisitFileResponse:
		m = &VisitFileResponseMessage{}
	case KindExit:
		m = &ExitMessage{}
	case KindSubmit:
		m = &SubmitMessage{}
	default:
		return nil, fmt.Errorf("wire: unknown message kind %d", kind)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, m); err != nil {
			return nil, fmt.Errorf("wire: decode %s: %w", kind, err)
		}
	}
	return m, nil
}

// ClientMessage announces "a client just connected".
type ClientMessage struct{}

func (*ClientMessage) Kind() Kind { return KindClient }

// ClientConnectedMessage is broadcast by the job-server to its other
// peers when a new client joins, carrying the new peer's address.
type ClientConnectedMessage struct {
	Peer string `json:"peer"`
}

func (*ClientConnectedMessage) Kind() Kind { return KindClientConnected }

// JobAnnouncementMessage says "I have work, come get it."
type JobAnnouncementMessage struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func (*JobAnnouncementMessage) Kind() Kind { return KindJobAnnouncement }

// ProxyJobAnnouncementMessage is sent by a non-server peer to the
// job-server, which re-broadcasts it as JobAnnouncementMessage,
// substituting the originator's observed IP for Host.
type ProxyJobAnnouncementMessage struct {
	Port uint16 `json:"port"`
}

func (*ProxyJobAnnouncementMessage) Kind() Kind { return KindProxyJobAnnouncement }

// JobRequestMessage asks a peer for up to NumJobs units of work.
type JobRequestMessage struct {
	NumJobs int `json:"num_jobs"`
}

func (*JobRequestMessage) Kind() Kind { return KindJobRequest }

// WireUnit is the on-wire projection of unit.Unit carried inside a
// JobResponseMessage and a local worker's stdin: it adds the fields a remote peer
// needs to run the job and report back, without forcing unit.Unit
// itself to know about the wire format.
type WireUnit struct {
	JobID       uint64    `json:"job_id"`
	Project     string    `json:"project"`
	Unit        unit.Unit `json:"unit"`
	Destination string    `json:"destination,omitempty"`
	Port        uint16    `json:"port,omitempty"`
}

// JobResponseMessage answers a JobRequestMessage with up to n units of
// work, a callback port for reporting back, and whether the sender has
// nothing further to offer for now.
type JobResponseMessage struct {
	Jobs     []WireUnit `json:"jobs"`
	Port     uint16     `json:"port"`
	Finished bool       `json:"finished"`
}

func (*JobResponseMessage) Kind() Kind { return KindJobResponse }

// IndexData is the result record a worker (or an owning peer relaying
// one) reports back for a single job. Project-level symbol storage is
// out of scope for this package; IndexData is the boundary record
// handed to it.
type IndexData struct {
	JobID       uint64 `json:"job_id"`
	FileID      uint32 `json:"file_id"`
	Project     string `json:"project"`
	Diagnostics []byte `json:"diagnostics,omitempty"`
}

// IndexerMessage carries one completed job's result, from a local
// worker or from the remote peer that ran it on our behalf.
type IndexerMessage struct {
	Data IndexData `json:"data"`
}

func (*IndexerMessage) Kind() Kind { return KindIndexer }

// VisitFileMessage asks the owning coordinator to resolve/assign a
// file id for a path a worker encountered while indexing.
type VisitFileMessage struct {
	Project string `json:"project"`
	File    string `json:"file"`
	Key     uint64 `json:"key"`
}

func (*VisitFileMessage) Kind() Kind { return KindVisitFile }

// VisitFileResponseMessage answers a VisitFileMessage. A request whose
// project cannot be loaded gets FileID=0, Visit=false.
type VisitFileResponseMessage struct {
	FileID   uint32 `json:"file_id"`
	Resolved string `json:"resolved"`
	Visit    bool   `json:"visit"`
}

func (*VisitFileResponseMessage) Kind() Kind { return KindVisitFileResponse }

// ExitMessage triggers shutdown orchestration.
type ExitMessage struct {
	ExitCode int  `json:"exit_code"`
	Forward  bool `json:"forward"`
}

func (*ExitMessage) Kind() Kind { return KindExit }

// SubmitMessage is sent by a CLI client to admit a compile command,
// the entry point for the whole job lifecycle.
type SubmitMessage struct {
	Project string      `json:"project"`
	Source  unit.Source `json:"source"`
}

func (*SubmitMessage) Kind() Kind { return KindSubmit }
