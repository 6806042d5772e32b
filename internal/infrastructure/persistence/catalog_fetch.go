package persistence

import (
	"context"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"inspectfleet/pkg/httpx"
	"inspectfleet/pkg/lox"
)

// staticAuthenticator is the simplest possible httpx.authenticator: a
// fixed token with no refresh flow, for upstream catalog sources that
// require a static API key rather than a login exchange.
type staticAuthenticator struct {
	token string
}

func (a staticAuthenticator) Authenticate(context.Context) error { return nil }
func (a staticAuthenticator) BearerToken() string                { return a.token }

// CatalogFetcher pulls a static game-metadata feed from an upstream HTTP
// source and upserts it into the catalog tables. It is a supplement to
// (not a replacement for) the Postgres-backed snapshot the Decorator
// reads from: Fetch populates the rows, Decorator.Refresh
// re-reads them.
type CatalogFetcher struct {
	url    string
	client *http.Client
	repo   *CatalogRepository
}

// NewCatalogFetcher builds a fetcher. If bearerToken is non-empty, the
// client authenticates with it via httpx.AuthBearerRoundTripper; all
// requests are logged via httpx.LoggingRoundTripper regardless.
func NewCatalogFetcher(url, bearerToken string, repo *CatalogRepository) *CatalogFetcher {
	var rt http.RoundTripper = httpx.NewLoggingRoundTripper(http.DefaultTransport)

	if bearerToken != "" {
		rt = httpx.NewAuthBearerRoundTripper(rt, staticAuthenticator{token: bearerToken})
	}

	return &CatalogFetcher{
		url:    url,
		client: &http.Client{Transport: rt},
		repo:   repo,
	}
}

type upstreamCatalogPayload struct {
	Items []struct {
		DefIndex   int     `json:"defindex"`
		PaintIndex int     `json:"paintindex"`
		ItemName   string  `json:"itemName"`
		Rarity     string  `json:"rarity"`
		MinFloat   float64 `json:"minFloat"`
		MaxFloat   float64 `json:"maxFloat"`
	} `json:"items"`
	Stickers []struct {
		StickerID int    `json:"stickerId"`
		Name      string `json:"name"`
		Rarity    string `json:"rarity"`
	} `json:"stickers"`
	Keychains []struct {
		KeychainID int    `json:"keychainId"`
		Name       string `json:"name"`
		Rarity     string `json:"rarity"`
	} `json:"keychains"`
}

// Fetch pulls the upstream payload and upserts it. It runs on the same
// periodic interval as Decorator.Refresh; the two tasks are not staggered,
// so a refresh may read the rows before or after a concurrent upsert.
func (f *CatalogFetcher) Fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("client.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream catalog source: unexpected status %d", resp.StatusCode)
	}

	var payload upstreamCatalogPayload
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode upstream catalog payload: %w", err)
	}

	_, err = lox.MapErr(payload.Items, func(it struct {
		DefIndex   int     `json:"defindex"`
		PaintIndex int     `json:"paintindex"`
		ItemName   string  `json:"itemName"`
		Rarity     string  `json:"rarity"`
		MinFloat   float64 `json:"minFloat"`
		MaxFloat   float64 `json:"maxFloat"`
	}) (int, error) {
		return 0, f.repo.UpsertItem(ctx, it.DefIndex, it.PaintIndex, it.ItemName, it.Rarity, it.MinFloat, it.MaxFloat)
	})
	if err != nil {
		return err
	}

	_, err = lox.MapErr(payload.Stickers, func(s struct {
		StickerID int    `json:"stickerId"`
		Name      string `json:"name"`
		Rarity    string `json:"rarity"`
	}) (int, error) {
		return 0, f.repo.UpsertSticker(ctx, s.StickerID, s.Name, s.Rarity)
	})
	if err != nil {
		return err
	}

	_, err = lox.MapErr(payload.Keychains, func(k struct {
		KeychainID int    `json:"keychainId"`
		Name       string `json:"name"`
		Rarity     string `json:"rarity"`
	}) (int, error) {
		return 0, f.repo.UpsertKeychain(ctx, k.KeychainID, k.Name, k.Rarity)
	})

	return err
}
