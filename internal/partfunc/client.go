// Public domain.

package partfunc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gonum.org/v1/gonum/unit"
)

// QResponse is the JSON body of a partition function service response.
type QResponse struct {
	Molecule    string  `json:"molecule"`
	Temperature float64 `json:"temperature" doc:"Temperature in K"`
	Q           float64 `json:"q" doc:"Rotational partition function"`
}

// Client is a Lookup backed by a partition function service.  It issues
//
//	GET {BaseURL}/partition/{molecule}?temperature={K}
//
// and expects a QResponse.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client with a default timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Q implements Lookup.
func (c *Client) Q(ctx context.Context, molecule string, t unit.Temperature) (float64, error) {
	if err := checkT(t); err != nil {
		return 0, err
	}
	u := c.BaseURL + "/partition/" + url.PathEscape(molecule) +
		"?temperature=" + strconv.FormatFloat(float64(t), 'g', -1, 64)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	r, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("partition function service: %w", err)
	}
	defer r.Body.Close()
	switch r.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMolecule, molecule)
	default:
		return 0, fmt.Errorf("partition function service: %s", r.Status)
	}
	var qr QResponse
	if err := json.NewDecoder(r.Body).Decode(&qr); err != nil {
		return 0, fmt.Errorf("partition function service: %w", err)
	}
	if !(qr.Q > 0) {
		return 0, fmt.Errorf("partition function service: invalid Q %g", qr.Q)
	}
	return qr.Q, nil
}
