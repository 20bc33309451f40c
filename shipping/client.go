package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrCarrierRejected means the carrier answered and said no (bad district,
// unsupported route, auth failure). Never retried: rate calculation is not
// guaranteed idempotent on the carrier side.
var ErrCarrierRejected = errors.New("carrier rejected fee request")

type ParcelItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Weight   int    `json:"weight"`
}

type FeeRequest struct {
	DistrictID int
	WardCode   string
	Items      []ParcelItem
}

type FeeQuote struct {
	Total        float64 `json:"total"`
	ServiceFee   float64 `json:"service_fee"`
	InsuranceFee float64 `json:"insurance_fee"`
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type feeAPIRequest struct {
	ToDistrictID int          `json:"to_district_id"`
	ToWardCode   string       `json:"to_ward_code"`
	Weight       int          `json:"weight"`
	Items        []ParcelItem `json:"items"`
}

type feeAPIResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Total        float64 `json:"total"`
		ServiceFee   float64 `json:"service_fee"`
		InsuranceFee float64 `json:"insurance_fee"`
	} `json:"data"`
}

// EstimateFee asks the carrier for the shipping cost of a parcel. Transport
// failures get a single retry; anything the carrier actually answered is
// taken as final.
func (c *Client) EstimateFee(ctx context.Context, req FeeRequest) (FeeQuote, error) {
	weight := 0
	for _, it := range req.Items {
		weight += it.Weight * it.Quantity
	}
	body, err := json.Marshal(feeAPIRequest{
		ToDistrictID: req.DistrictID,
		ToWardCode:   req.WardCode,
		Weight:       weight,
		Items:        req.Items,
	})
	if err != nil {
		return FeeQuote{}, err
	}

	resp, err := c.post(ctx, "/v2/shipping-order/fee", body)
	if err != nil {
		if ctx.Err() != nil {
			return FeeQuote{}, err
		}
		// one retry, transport errors only
		resp, err = c.post(ctx, "/v2/shipping-order/fee", body)
		if err != nil {
			return FeeQuote{}, err
		}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return FeeQuote{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return FeeQuote{}, fmt.Errorf("%w: http %d", ErrCarrierRejected, resp.StatusCode)
	}

	var decoded feeAPIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return FeeQuote{}, fmt.Errorf("decode fee response: %w", err)
	}
	if decoded.Code != http.StatusOK {
		return FeeQuote{}, fmt.Errorf("%w: %s", ErrCarrierRejected, decoded.Message)
	}

	return FeeQuote{
		Total:        decoded.Data.Total,
		ServiceFee:   decoded.Data.ServiceFee,
		InsuranceFee: decoded.Data.InsuranceFee,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", c.Token)
	return c.HTTPClient.Do(req)
}
