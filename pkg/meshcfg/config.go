// Package meshcfg loads the per-node runtime configuration the host needs
// to stand up a Facade and a bearer: the node's own address, its current
// IV index, which bearer to dial and how, and the logging level to run
// at. The file format and loading idiom are the same .ini-flavoured one
// used for object dictionaries elsewhere, just with a much smaller schema.
package meshcfg

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"
)

// NodeConfig is the section of the file describing this node.
type NodeConfig struct {
	Address  uint16
	IvIndex  uint32
	LogLevel string
}

// BearerConfig is the section describing which bearer to construct and
// how, matching bearer.New's (kind, channel) shape.
type BearerConfig struct {
	Kind    string
	Channel string
}

// Config is the full parsed runtime configuration.
type Config struct {
	Node   NodeConfig
	Bearer BearerConfig
}

// Load parses file (a path, []byte, or io.Reader, anything ini.Load
// accepts) into a Config.
func Load(file any) (*Config, error) {
	f, err := ini.Load(file)
	if err != nil {
		return nil, err
	}

	node := f.Section("node")
	addr, err := strconv.ParseUint(node.Key("address").MustString("0x0001"), 0, 16)
	if err != nil {
		return nil, fmt.Errorf("node.address: %w", err)
	}
	ivIndex, err := strconv.ParseUint(node.Key("iv_index").MustString("0"), 0, 32)
	if err != nil {
		return nil, fmt.Errorf("node.iv_index: %w", err)
	}

	bearerSection := f.Section("bearer")
	cfg := &Config{
		Node: NodeConfig{
			Address:  uint16(addr),
			IvIndex:  uint32(ivIndex),
			LogLevel: node.Key("log_level").MustString("info"),
		},
		Bearer: BearerConfig{
			Kind:    bearerSection.Key("kind").MustString("virtual"),
			Channel: bearerSection.Key("channel").MustString("default"),
		},
	}
	return cfg, nil
}
