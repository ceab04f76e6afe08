package catalog

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/shop-orders/internal/domain/product"
)

// DefaultURL is the remote shop catalog endpoint.
const DefaultURL = "http://dimensweb.uqac.ca/~jgnault/shops/products/"

// maxCatalogSize bounds how much of a catalog document is read.
const maxCatalogSize = 64 << 20

// Loader reads the catalog from a URL or a local snapshot.
type Loader struct {
	client *http.Client
}

// NewLoader creates a Loader whose HTTP requests time out after timeout.
func NewLoader(timeout time.Duration) *Loader {
	return &Loader{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Load reads products from source. Sources starting with http:// or https://
// are fetched; anything else is treated as a file path, gunzipped when it ends
// in .gz.
func (l *Loader) Load(ctx context.Context, source string) ([]product.Product, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.Fetch(ctx, source)
	}
	return ReadFile(source)
}

// Fetch downloads and decodes the catalog at url.
func (l *Loader) Fetch(ctx context.Context, url string) ([]product.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch catalog")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
	}

	return decodeReader(resp.Body)
}

// ReadFile decodes a catalog snapshot from disk.
func ReadFile(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	products, err := decodeReader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return products, nil
}

func decodeReader(r io.Reader) ([]product.Product, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxCatalogSize))
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return DecodeProducts(data)
}
