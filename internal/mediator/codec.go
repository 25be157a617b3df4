package mediator

import "encoding/json"

func decodePayload(raw json.RawMessage, out any) error {
	return json.Unmarshal(raw, out)
}

func encodeError(err error) json.RawMessage {
	data, marshalErr := json.Marshal(err.Error())
	if marshalErr != nil {
		return json.RawMessage(`"mediator: error encoding failure"`)
	}
	return data
}
