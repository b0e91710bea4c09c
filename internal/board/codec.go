package board

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireEntry struct {
	Cmd     Command `json:"cmd"`
	Type    string  `json:"type"`
	Payload []byte  `json:"payload"`
}

func encodeEntry(e Entry) ([]byte, error) {
	return json.Marshal(wireEntry{Cmd: e.Cmd, Type: e.Type, Payload: e.Payload})
}

func decodeEntry(buf []byte) (Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(buf, &w); err != nil {
		return Entry{}, err
	}
	return Entry{Cmd: w.Cmd, Type: w.Type, Payload: w.Payload}, nil
}
