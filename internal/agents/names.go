package agents

import (
	"hash/fnv"

	"github.com/Kocoro-lab/deepresearch/internal/research"
)

// Worker roles used as name prefixes.
const (
	RoleResearcher = "researcher"
	RoleAnalyst    = "analyst"
)

// stationNames is a fixed pool so names stay stable across workflow replays.
var stationNames = []string{
	"Ome", "Gora", "Maji", "Ueno", "Ebisu",
	"Osaki", "Otaru", "Namba", "Tenma", "Mejiro",
	"Koenji", "Gotanda", "Ryogoku", "Yutenji", "Nippori",
	"Asagaya", "Mojiko", "Taisho", "Yumoto", "Harajuku",
	"Odawara", "Enoshima", "Ogikubo", "Ichigaya", "Komazawa",
	"Wakkanai", "Todoroki", "Naruto", "Zushi", "Fussa",
	"Nikko", "Hakone", "Beppu", "Atami", "Kamakura",
	"Takao", "Mitaka", "Kichijoji", "Chichibu", "Kawagoe",
}

// WorkerName returns a deterministic display name for a dispatch. The same
// session, round and index always produce the same name.
func WorkerName(role string, id research.WorkerID) string {
	hash := fnv32a(id.SessionID)
	slot := (int(hash%uint32(len(stationNames))) + id.Round*7 + id.Index) % len(stationNames)
	return role + "-" + stationNames[slot]
}

func fnv32a(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
