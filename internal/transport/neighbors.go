package transport

import (
	"encoding/json"
	"io"

	"github.com/loopvia/ringd/internal/identity"
	"github.com/loopvia/ringd/internal/node"
)

// decodeNeighborUpdate parses the tri-state /update_neighbors body (§6.1):
// a field group absent from the JSON object leaves that pointer untouched,
// an explicit JSON null clears it, and a populated id/host/socket_port
// triple sets it. json.RawMessage presence in a raw map is what lets us
// tell "absent" apart from "null", which a plain struct with *int fields
// cannot.
func decodeNeighborUpdate(r io.Reader) (node.NeighborUpdate, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return node.NeighborUpdate{}, err
	}
	return neighborUpdateFromRaw(raw), nil
}

func neighborUpdateFromRaw(raw map[string]json.RawMessage) node.NeighborUpdate {
	return node.NeighborUpdate{
		Prev:     decodeOptionalNode(raw, "prev_id", "prev_host", "prev_socket_port"),
		Next:     decodeOptionalNode(raw, "next_id", "next_host", "next_socket_port"),
		NextNext: decodeOptionalNode(raw, "next_next_id", "next_next_host", "next_next_socket_port"),
	}
}

func decodeOptionalNode(raw map[string]json.RawMessage, idKey, hostKey, portKey string) node.OptionalNode {
	idRaw, idPresent := raw[idKey]
	_, hostPresent := raw[hostKey]
	_, portPresent := raw[portKey]

	if !idPresent && !hostPresent && !portPresent {
		return node.OptionalNode{}
	}
	if idPresent && isJSONNull(idRaw) {
		return node.ClearNode()
	}

	var info identity.NodeInfo
	if idPresent {
		_ = json.Unmarshal(idRaw, &info.ID)
	}
	if hostRaw, ok := raw[hostKey]; ok {
		_ = json.Unmarshal(hostRaw, &info.Host)
	}
	if portRaw, ok := raw[portKey]; ok {
		_ = json.Unmarshal(portRaw, &info.SocketPort)
	}
	return node.SetNode(info)
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// encodeNeighborUpdate renders a NeighborUpdate in the same tri-state shape
// decodeNeighborUpdate reads, used for the /join response body: the joiner
// needs to tell an untouched field (there is none in a join response, but
// the shape stays symmetric) apart from an explicit clear.
func encodeNeighborUpdate(u node.NeighborUpdate) map[string]interface{} {
	out := map[string]interface{}{}
	encodeOptionalNode(out, u.Prev, "prev_id", "prev_host", "prev_socket_port")
	encodeOptionalNode(out, u.Next, "next_id", "next_host", "next_socket_port")
	encodeOptionalNode(out, u.NextNext, "next_next_id", "next_next_host", "next_next_socket_port")
	return out
}

func encodeOptionalNode(out map[string]interface{}, n node.OptionalNode, idKey, hostKey, portKey string) {
	if !n.Set {
		return
	}
	if n.Value == nil {
		out[idKey] = nil
		out[hostKey] = nil
		out[portKey] = nil
		return
	}
	out[idKey] = n.Value.ID
	out[hostKey] = n.Value.Host
	out[portKey] = n.Value.SocketPort
}
