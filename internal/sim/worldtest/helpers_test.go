package worldtest

import (
	"voxelcraft.ai/signlink/internal/protocol"
)

func actionResultCode(obs protocol.ObsMsg, ref string) string {
	for _, e := range obs.Events {
		if typ, _ := e["type"].(string); typ != protocol.EventActionResult {
			continue
		}
		if got, _ := e["ref"].(string); got != ref {
			continue
		}
		if ok, _ := e["ok"].(bool); ok {
			return ""
		}
		if code, _ := e["code"].(string); code != "" {
			return code
		}
		return protocol.ErrInternal
	}
	return "missing"
}

func notices(obs protocol.ObsMsg, channel string) []string {
	var out []string
	for _, e := range obs.Events {
		if typ, _ := e["type"].(string); typ != protocol.EventNotice {
			continue
		}
		if ch, _ := e["channel"].(string); ch != channel {
			continue
		}
		text, _ := e["text"].(string)
		out = append(out, text)
	}
	return out
}

func hasEvent(obs protocol.ObsMsg, typ string) bool {
	for _, e := range obs.Events {
		if got, _ := e["type"].(string); got == typ {
			return true
		}
	}
	return false
}

func blockUpdateAt(obs protocol.ObsMsg, pos [3]int) (string, bool) {
	for _, e := range obs.Events {
		if typ, _ := e["type"].(string); typ != protocol.EventBlockUpdate {
			continue
		}
		if decodePos(e["pos"]) != pos {
			continue
		}
		block, _ := e["block"].(string)
		return block, true
	}
	return "", false
}

// decodePos converts a JSON-decoded [x,y,z] array.
func decodePos(v interface{}) [3]int {
	var out [3]int
	arr, _ := v.([]interface{})
	for i := 0; i < len(arr) && i < 3; i++ {
		f, _ := arr[i].(float64)
		out[i] = int(f)
	}
	return out
}
