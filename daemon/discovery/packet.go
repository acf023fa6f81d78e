package discovery

import "encoding/json"

// Packet is broadcast on the discovery channel every BroadcastInterval while the service runs.
type Packet struct {
	DeviceID        string   `json:"device_id"`
	DisplayName     string   `json:"display_name"`
	ListenPort      int      `json:"listen_port"`
	AppVersion      string   `json:"app_version"`
	PairingRequired bool     `json:"pairing_required"`
	Capabilities    []string `json:"capabilities"`
	TS              int64    `json:"ts"`
}

func encodePacket(p Packet) ([]byte, error) {
	return json.Marshal(p)
}

func decodePacket(data []byte) (Packet, error) {
	var p Packet
	err := json.Unmarshal(data, &p)
	return p, err
}
