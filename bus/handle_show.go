package bus

import (
	"fmt"
	"strconv"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"vela/config"
	"vela/engine"
)

// HandleStats serves the console's cluster overview: replica identity,
// primary, peer counts, chunk map shape and host vitals.
func HandleStats(b *Bus, s *config.Controller, db *engine.Engine, m *Message) {
	doc := map[string]string{
		"node":       s.Self.ConnectionName(),
		"chunkCount": strconv.Itoa(s.Chunks.Len()),
	}

	if p, ok := s.Primary(); ok {
		doc["primary"] = p.ConnectionName()
	} else {
		doc["primary"] = "none"
	}

	for _, t := range []config.NodeType{config.TypeController, config.TypeQuery, config.TypeStorage, config.TypeApi, config.TypeConsole} {
		doc["peers."+t.String()] = strconv.Itoa(len(b.PeersOfType(t)))
	}

	if db != nil {
		if version, _, err := db.LatestChunkSnapshot(); err == nil {
			doc["snapshotVersion"] = strconv.FormatUint(version, 10)
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		doc["host.memUsedPercent"] = fmt.Sprintf("%.1f", vm.UsedPercent)
	}
	if info, err := host.Info(); err == nil {
		doc["host.uptime"] = strconv.FormatUint(info.Uptime, 10)
		doc["host.os"] = info.OS
	}

	b.SendReply(m, StatsResponse{Doc: doc}, false)
}
