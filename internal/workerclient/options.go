package workerclient

import sdkclient "github.com/mark3labs/mcp-go/client"

// headerOptions builds the mcp-go client options carrying any worker-config
// headers for the two network transports (spec §3's "url + key/value
// headers" field).
func headerOptions(headers map[string]string) []sdkclient.ClientOption {
	if len(headers) == 0 {
		return nil
	}
	return []sdkclient.ClientOption{sdkclient.WithHeaders(headers)}
}
