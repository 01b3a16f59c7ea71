package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// Settings is the controller settings document. The ConnectionString lists
// every controller replica and doubles as the cluster identity: two
// controllers with different connection strings refuse to join each other.
type Settings struct {
	XMLName                   xml.Name `xml:"ControllerSettings"`
	ConnectionString          string   `xml:"ConnectionString"`
	NodeName                  string   `xml:"NodeName"`
	Port                      int      `xml:"Port"`
	LogLevel                  string   `xml:"LogLevel"`
	MaxChunkItemCount         int      `xml:"MaxChunkItemCount"`
	RedundantNodesPerLocation int      `xml:"RedundantNodesPerLocation"`
	WebInterfacePort          int      `xml:"WebInterfacePort"`
}

// LoadSettings reads and validates the settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read settings file %s: %w", path, err)
	}
	return ParseSettings(data)
}

// ParseSettings parses a settings document, as loaded from disk or as
// carried inside a controller join attempt.
func ParseSettings(data []byte) (*Settings, error) {
	s := &Settings{}
	if err := xml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("couldn't parse settings document: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings are usable at all. Whether this node
// belongs to the controller set is a separate check, see Self.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.ConnectionString) == "" {
		return fmt.Errorf("settings: ConnectionString is empty")
	}
	if strings.TrimSpace(s.NodeName) == "" {
		return fmt.Errorf("settings: NodeName is empty")
	}
	if s.Port <= 0 || s.Port > 0xFFFF {
		return fmt.Errorf("settings: Port %d out of range", s.Port)
	}
	if _, err := s.Controllers(); err != nil {
		return err
	}
	return nil
}

// Controllers parses the connection string into the configured controller
// set, in declaration order.
func (s *Settings) Controllers() ([]NodeDefinition, error) {
	parts := strings.Split(s.ConnectionString, ",")
	nodes := make([]NodeDefinition, 0, len(parts))
	for _, part := range parts {
		node, err := ParseNode(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("settings: bad ConnectionString entry: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Self returns this node's definition and verifies it is part of the
// configured controller set. A controller outside its own connection
// string is misconfigured and must not start.
func (s *Settings) Self() (NodeDefinition, error) {
	self := NodeDefinition{Hostname: s.NodeName, Port: s.Port}
	controllers, err := s.Controllers()
	if err != nil {
		return NodeDefinition{}, err
	}
	for _, c := range controllers {
		if c == self {
			return self, nil
		}
	}
	return NodeDefinition{}, fmt.Errorf("settings: node %s is not part of connection string %q",
		self.ConnectionName(), s.ConnectionString)
}

// Document renders the settings back to XML for transmission inside a
// join attempt.
func (s *Settings) Document() string {
	data, err := xml.Marshal(s)
	if err != nil {
		// Settings are plain scalars, marshalling cannot fail.
		return ""
	}
	return string(data)
}
