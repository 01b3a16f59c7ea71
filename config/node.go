package config

import (
	"fmt"

	"vela/utils"
)

// NodeType classifies a peer once its join handshake has completed.
type NodeType uint8

const (
	TypeUnknown NodeType = iota
	TypeController
	TypeQuery
	TypeStorage
	TypeApi
	TypeConsole
)

func (t NodeType) String() string {
	switch t {
	case TypeController:
		return "controller"
	case TypeQuery:
		return "query"
	case TypeStorage:
		return "storage"
	case TypeApi:
		return "api"
	case TypeConsole:
		return "console"
	}
	return "unknown"
}

// NodeDefinition identifies a node by its listen address. It is a value
// type: two definitions are the same node iff hostname and port match.
type NodeDefinition struct {
	Hostname string
	Port     int
}

// ConnectionName is the canonical "host:port" form. It doubles as the
// total ordering key for election tie-breaking, so it must be derived
// the same way on every replica.
func (n NodeDefinition) ConnectionName() string {
	return fmt.Sprintf("%s:%d", n.Hostname, n.Port)
}

func (n NodeDefinition) IsZero() bool {
	return n.Hostname == "" && n.Port == 0
}

// ParseNode parses a "host:port" pair into a NodeDefinition.
func ParseNode(addr string) (NodeDefinition, error) {
	host, port, err := utils.SplitHostPort(addr)
	if err != nil {
		return NodeDefinition{}, fmt.Errorf("invalid node address %q: %w", addr, err)
	}
	return NodeDefinition{Hostname: host, Port: port}, nil
}
