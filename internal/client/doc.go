// Package client talks to the settings API of a running printhost server.
//
// Requests carry the API key in the X-Api-Key header. Network failures and
// 5xx responses are retried with exponential backoff; authorization and
// request errors are returned immediately as *APIError values that the
// command line turns into troubleshooting hints.
//
// # Usage Example
//
//	c := client.NewClient("http://octopi.local:5000", apiKey)
//
//	current, err := c.GetSettings(ctx)
//	if err != nil {
//	    fmt.Println(client.GetTroubleshootingHint(err))
//	}
//
//	patch, _ := client.BuildPatch([]string{"serial.autoconnect=true"})
//	result, err := c.UpdateAndVerify(ctx, patch)
//	for _, m := range result.Mismatches {
//	    fmt.Println("not applied:", m)
//	}
package client
