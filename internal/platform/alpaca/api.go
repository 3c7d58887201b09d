package alpaca

import (
	"context"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/gamma-omg/algo-engine/internal/config"
)

type barsApi interface {
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
	GetCryptoBarsStream(ctx context.Context, symbol string) (<-chan stream.CryptoBar, <-chan error)
}

type alpacaApi struct {
	apiKey string
	secret string
	client *marketdata.Client
}

func newAlpacaApi(cfg config.Alpaca) *alpacaApi {
	return &alpacaApi{
		apiKey: cfg.ApiKey,
		secret: cfg.Secret,
		client: marketdata.NewClient(marketdata.ClientOpts{
			BaseURL:   cfg.DataUrl,
			APIKey:    cfg.ApiKey,
			APISecret: cfg.Secret,
		}),
	}
}

func (a *alpacaApi) GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error) {
	return a.client.GetCryptoBars(symbol, req)
}

func (a *alpacaApi) GetCryptoBarsStream(ctx context.Context, symbol string) (<-chan stream.CryptoBar, <-chan error) {
	errs := make(chan error, 1)
	bars := make(chan stream.CryptoBar)

	go func() {
		defer close(bars)
		defer close(errs)

		c := stream.NewCryptoClient(marketdata.US,
			stream.WithCredentials(a.apiKey, a.secret),
			stream.WithLogger(stream.DefaultLogger()),
			stream.WithCryptoBars(func(cb stream.CryptoBar) {
				select {
				case <-ctx.Done():
				case bars <- cb:
				}
			}, symbol))

		if err := c.Connect(ctx); err != nil {
			errs <- err
			return
		}

		select {
		case <-ctx.Done():
			errs <- ctx.Err()
		case err := <-c.Terminated():
			errs <- err
		}
	}()

	return bars, errs
}
