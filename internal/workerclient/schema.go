package workerclient

import "encoding/json"

func marshalSchema(schema any) ([]byte, error) {
	return json.Marshal(schema)
}
