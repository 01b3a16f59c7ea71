package bus

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"vela/config"
)

// Kind addresses a payload by its semantic type. The byte value is part
// of the wire contract.
type Kind uint8

const (
	KindJoinAttempt Kind = iota + 1
	KindJoinSuccess
	KindJoinFailure
	KindAcknowledgement
	KindVotingRequest
	KindVotingResponse
	KindLastPrimaryMessageIDRequest
	KindLastPrimaryMessageIDResponse
	KindPrimaryAnnouncement
	KindChunkListUpdate
	KindChunkSplit
	KindChunkMerge
	KindDataOperation
	KindDataOperationResult
	KindNodeList
	KindDatabaseCreate
	KindStatsRequest
	KindStatsResponse
)

// Payload is one of the message body types below.
type Payload interface {
	Kind() Kind
}

// JoinAttempt opens admission. Name and Port declare the canonical listen
// address; Settings carries the settings document (controllers, query and
// storage nodes) or the raw connection string (api nodes).
type JoinAttempt struct {
	Type         config.NodeType
	Name         string
	Port         int
	Settings     string
	PrimaryClaim bool
}

// JoinSuccess admits the peer. Doc is an extensible string document;
// absent keys are unset.
type JoinSuccess struct {
	Primary bool
	Doc     map[string]string
}

type JoinFailure struct {
	Reason string
}

type Acknowledgement struct{}

type VotingRequest struct{}

type VotingResponse struct {
	Answer bool
}

type LastPrimaryMessageIDRequest struct{}

type LastPrimaryMessageIDResponse struct {
	ID uint32
}

type PrimaryAnnouncement struct{}

type ChunkListUpdate struct {
	Chunks []config.ChunkDefinition
}

// ChunkSplit reports that the chunk starting at Start1 became the two
// adjacent chunks (Start1, End1) and (Start2, End2), End1 == Start2.
type ChunkSplit struct {
	Start1 config.Marker
	End1   config.Marker
	Start2 config.Marker
	End2   config.Marker
}

type ChunkMerge struct {
	Start config.Marker
	End   config.Marker
}

type DataOperation struct {
	Body []byte
}

type DataOperationResult struct {
	Failed  bool
	Message string
	Body    []byte
}

type NodeList struct {
	Type  config.NodeType
	Nodes []config.NodeDefinition
}

type DatabaseCreate struct {
	Name string
}

type StatsRequest struct{}

type StatsResponse struct {
	Doc map[string]string
}

func (JoinAttempt) Kind() Kind                  { return KindJoinAttempt }
func (JoinSuccess) Kind() Kind                  { return KindJoinSuccess }
func (JoinFailure) Kind() Kind                  { return KindJoinFailure }
func (Acknowledgement) Kind() Kind              { return KindAcknowledgement }
func (VotingRequest) Kind() Kind                { return KindVotingRequest }
func (VotingResponse) Kind() Kind               { return KindVotingResponse }
func (LastPrimaryMessageIDRequest) Kind() Kind  { return KindLastPrimaryMessageIDRequest }
func (LastPrimaryMessageIDResponse) Kind() Kind { return KindLastPrimaryMessageIDResponse }
func (PrimaryAnnouncement) Kind() Kind          { return KindPrimaryAnnouncement }
func (ChunkListUpdate) Kind() Kind              { return KindChunkListUpdate }
func (ChunkSplit) Kind() Kind                   { return KindChunkSplit }
func (ChunkMerge) Kind() Kind                   { return KindChunkMerge }
func (DataOperation) Kind() Kind                { return KindDataOperation }
func (DataOperationResult) Kind() Kind          { return KindDataOperationResult }
func (NodeList) Kind() Kind                     { return KindNodeList }
func (DatabaseCreate) Kind() Kind               { return KindDatabaseCreate }
func (StatsRequest) Kind() Kind                 { return KindStatsRequest }
func (StatsResponse) Kind() Kind                { return KindStatsResponse }

// bodyless marks the marker payloads that carry no fields; they go on
// the wire as the bare kind byte. gob has nothing to say about them.
func bodyless(k Kind) bool {
	switch k {
	case KindAcknowledgement, KindVotingRequest, KindLastPrimaryMessageIDRequest,
		KindPrimaryAnnouncement, KindStatsRequest:
		return true
	}
	return false
}

// encodePayload renders the kind byte followed by the gob body.
func encodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil payload")
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Kind()))
	if bodyless(p.Kind()) {
		return buf.Bytes(), nil
	}
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("couldn't encode %T: %w", p, err)
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	kind := Kind(data[0])
	if bodyless(kind) {
		switch kind {
		case KindAcknowledgement:
			return &Acknowledgement{}, nil
		case KindVotingRequest:
			return &VotingRequest{}, nil
		case KindLastPrimaryMessageIDRequest:
			return &LastPrimaryMessageIDRequest{}, nil
		case KindPrimaryAnnouncement:
			return &PrimaryAnnouncement{}, nil
		case KindStatsRequest:
			return &StatsRequest{}, nil
		}
	}
	dec := gob.NewDecoder(bytes.NewReader(data[1:]))

	decode := func(p Payload) (Payload, error) {
		if err := dec.Decode(p); err != nil {
			return nil, fmt.Errorf("couldn't decode %T: %w", p, err)
		}
		return p, nil
	}

	switch kind {
	case KindJoinAttempt:
		return decode(&JoinAttempt{})
	case KindJoinSuccess:
		return decode(&JoinSuccess{})
	case KindJoinFailure:
		return decode(&JoinFailure{})
	case KindVotingResponse:
		return decode(&VotingResponse{})
	case KindLastPrimaryMessageIDResponse:
		return decode(&LastPrimaryMessageIDResponse{})
	case KindChunkListUpdate:
		return decode(&ChunkListUpdate{})
	case KindChunkSplit:
		return decode(&ChunkSplit{})
	case KindChunkMerge:
		return decode(&ChunkMerge{})
	case KindDataOperation:
		return decode(&DataOperation{})
	case KindDataOperationResult:
		return decode(&DataOperationResult{})
	case KindNodeList:
		return decode(&NodeList{})
	case KindDatabaseCreate:
		return decode(&DatabaseCreate{})
	case KindStatsResponse:
		return decode(&StatsResponse{})
	}
	return nil, fmt.Errorf("unknown payload kind %d", kind)
}
