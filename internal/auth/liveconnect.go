package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
)

// LiveConnectURL is the Windows Live token endpoint used by WNS.
const LiveConnectURL = "https://login.live.com/accesstoken.srf"

const wnsScope = "notify.windows.com"

// LiveConnectFetch returns a FetchFunc performing the WNS client_credentials
// grant with the package SID and secret.
func LiveConnectFetch(clientID, clientSecret string, client transport.Client) FetchFunc {
	return func(ctx context.Context) (string, time.Duration, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
		form.Set("scope", wnsScope)

		headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

		reply, err := client.Do(ctx, http.MethodPost, LiveConnectURL, headers, []byte(form.Encode()), transport.Options{})
		if err != nil {
			return "", 0, err
		}

		return parseTokenReply(reply.Body)
	}
}
