package mypubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MarcGrol/stripeshop/lib/myevents"
)

// pushToSubscriber delivers one message the way a gcloud push subscription does.
func pushToSubscriber(c context.Context, httpClient *http.Client, subscription string, urlToPostTo string, messageID string, data []byte) error {
	body, err := json.Marshal(myevents.PushRequest{
		Message: myevents.PushMessage{
			Data: data,
			ID:   messageID,
		},
		Subscription: subscription,
	})
	if err != nil {
		return fmt.Errorf("error marshalling push request: %s", err)
	}

	req, err := http.NewRequestWithContext(c, http.MethodPost, urlToPostTo, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating push request for %s: %s", urlToPostTo, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error pushing to %s: %s", urlToPostTo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subscriber %s responded with %d", urlToPostTo, resp.StatusCode)
	}
	return nil
}
