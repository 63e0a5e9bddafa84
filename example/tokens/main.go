// Example tokens: keep tokens in an encrypted file and refresh them on
// expiry.
//
// Usage:
//
//	TETHER_BASE_URL=http://localhost:2428 TETHER_PASSPHRASE=secret \
//	    go run ./example/tokens <access-token> <refresh-token>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hedeqiang/tether"
	"github.com/hedeqiang/tether/auth"
	"github.com/hedeqiang/tether/transport"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("usage: tokens <access-token> <refresh-token>")
	}

	cfg, err := tether.LoadConfig("")
	if err != nil {
		log.Fatal(err)
	}
	if cfg.BaseURL == "" {
		log.Fatal("TETHER_BASE_URL environment variable is required")
	}
	cfg.TokenFile = "./tokens.json"

	// The refresh exchange runs without the bearer header, on its own
	// transport.
	plain := transport.New(cfg.BaseURL, transport.WithTimeout(10*time.Second))
	exchange := func(ctx context.Context, refreshToken string) (auth.TokenData, error) {
		resp, err := plain.Post(ctx, "/admin-api/refresh-jwt-token", map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return auth.TokenData{}, err
		}
		var body struct {
			Data struct {
				AccessToken  string `json:"accessToken"`
				RefreshToken string `json:"refreshToken"`
			} `json:"data"`
		}
		if err := resp.Decode(&body); err != nil {
			return auth.TokenData{}, err
		}
		return auth.FromJWT(body.Data.AccessToken, body.Data.RefreshToken)
	}

	c, err := tether.New(cfg, tether.WithRefreshFunc(exchange))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close(context.Background())

	t, err := auth.FromJWT(os.Args[1], os.Args[2])
	if err != nil {
		// opaque token: assume one hour
		t = auth.TokenData{AccessToken: os.Args[1], RefreshToken: os.Args[2], ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
	}
	if err := c.Auth().Login(t); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.HTTP().Get(ctx, "/admin-api/contexts")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(resp.StatusCode, http.StatusText(resp.StatusCode))

	current := c.Auth().Current()
	out, _ := json.MarshalIndent(map[string]any{
		"expiresAt": current.Expiry().Format(time.RFC3339),
		"refreshed": current.AccessToken != os.Args[1],
	}, "", "  ")
	fmt.Println(string(out))
}
