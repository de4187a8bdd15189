package courier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/metrics"
)

const (
	ProviderDelhivery = "delhivery"

	delhiveryBaseURL     = "https://track.delhivery.com"
	delhiveryTrackingURL = "https://www.delhivery.com/track/package/"
)

// DelhiveryCourier Delhivery B2C 接口
type DelhiveryCourier struct {
	token   string
	baseURL string
	client  *http.Client
	metrics *metrics.MetricsCollector
}

// NewDelhiveryCourier 创建 Delhivery 适配器
func NewDelhiveryCourier(cfg config.DelhiveryConfig, timeout time.Duration, m *metrics.MetricsCollector) (*DelhiveryCourier, error) {
	if cfg.Token == "" {
		return nil, errors.New("delhivery token missing")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = delhiveryBaseURL
	}
	return &DelhiveryCourier{
		token:   cfg.Token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}, nil
}

func (d *DelhiveryCourier) Name() string { return ProviderDelhivery }

func (d *DelhiveryCourier) TrackingURL(trackingNumber string) string {
	return delhiveryTrackingURL + url.PathEscape(trackingNumber)
}

type delhiveryShipment struct {
	Name          string  `json:"name"`
	Add           string  `json:"add"`
	Pin           string  `json:"pin"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	Country       string  `json:"country"`
	Phone         string  `json:"phone"`
	Order         string  `json:"order"`
	PaymentMode   string  `json:"payment_mode"`
	ProductsDesc  string  `json:"products_desc"`
	CODAmount     float64 `json:"cod_amount"`
	OrderDate     string  `json:"order_date"`
	TotalAmount   float64 `json:"total_amount"`
	Quantity      int     `json:"quantity"`
	Weight        int     `json:"weight"`
	ShippingMode  string  `json:"shipping_mode"`
	ReturnName    string  `json:"return_name,omitempty"`
	ReturnAdd     string  `json:"return_add,omitempty"`
	ReturnPin     string  `json:"return_pin,omitempty"`
	ReturnCity    string  `json:"return_city,omitempty"`
	ReturnState   string  `json:"return_state,omitempty"`
	ReturnPhone   string  `json:"return_phone,omitempty"`
	ReturnCountry string  `json:"return_country,omitempty"`
}

type delhiveryCreateRequest struct {
	Shipments      []delhiveryShipment `json:"shipments"`
	PickupLocation struct {
		Name string `json:"name"`
	} `json:"pickup_location"`
}

type delhiveryCreateResponse struct {
	Success  bool   `json:"success"`
	RMK      string `json:"rmk"`
	Packages []struct {
		Waybill string   `json:"waybill"`
		RefNum  string   `json:"refnum"`
		Status  string   `json:"status"`
		Remarks []string `json:"remarks"`
	} `json:"packages"`
}

// CreateShipment POST /api/cmu/create.json，表单字段 format=json&data=<json>
func (d *DelhiveryCourier) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	qty := 0
	names := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		qty += it.Quantity
		names = append(names, it.Name)
	}

	shipment := delhiveryShipment{
		Name:          req.Delivery.Name,
		Add:           joinAddress(req.Delivery.Line1, req.Delivery.Line2),
		Pin:           req.Delivery.PostalCode,
		City:          req.Delivery.City,
		State:         req.Delivery.State,
		Country:       req.Delivery.Country,
		Phone:         req.Delivery.Phone,
		Order:         req.OrderNumber,
		PaymentMode:   string(req.PaymentMode),
		ProductsDesc:  strings.Join(names, ", "),
		OrderDate:     req.OrderDate.Format("2006-01-02 15:04:05"),
		TotalAmount:   req.DeclaredValue.Round(2).InexactFloat64(),
		Quantity:      qty,
		Weight:        req.TotalWeightGrams(),
		ShippingMode:  "Surface",
		ReturnName:    req.Pickup.Name,
		ReturnAdd:     req.Pickup.Line1,
		ReturnPin:     req.Pickup.PostalCode,
		ReturnCity:    req.Pickup.City,
		ReturnState:   req.Pickup.State,
		ReturnPhone:   req.Pickup.Phone,
		ReturnCountry: req.Pickup.Country,
	}
	if req.PaymentMode == PaymentCOD {
		shipment.CODAmount = req.CODAmount.Round(2).InexactFloat64()
	}

	payload := delhiveryCreateRequest{Shipments: []delhiveryShipment{shipment}}
	payload.PickupLocation.Name = req.PickupName

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Courier: ProviderDelhivery, Op: "create_shipment", Err: err}
	}
	form := url.Values{}
	form.Set("format", "json")
	form.Set("data", string(data))

	var resp delhiveryCreateResponse
	if err := d.do(ctx, "create_shipment", http.MethodPost, "/api/cmu/create.json",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp); err != nil {
		return nil, err
	}

	if len(resp.Packages) == 0 || resp.Packages[0].Waybill == "" {
		msg := resp.RMK
		if len(resp.Packages) > 0 && len(resp.Packages[0].Remarks) > 0 {
			msg = strings.Join(resp.Packages[0].Remarks, "; ")
		}
		if msg == "" {
			msg = "no waybill in response"
		}
		return nil, &Error{Courier: ProviderDelhivery, Op: "create_shipment", Err: errors.New(msg)}
	}

	waybill := resp.Packages[0].Waybill
	return &ShipmentResult{
		TrackingNumber: waybill,
		AWBNumber:      waybill,
		ProviderRef:    resp.Packages[0].RefNum,
	}, nil
}

type delhiveryTrackResponse struct {
	ShipmentData []struct {
		Shipment struct {
			AWB                  string `json:"AWB"`
			ExpectedDeliveryDate string `json:"ExpectedDeliveryDate"`
			Status               struct {
				Status         string `json:"Status"`
				StatusLocation string `json:"StatusLocation"`
				StatusDateTime string `json:"StatusDateTime"`
			} `json:"Status"`
		} `json:"Shipment"`
	} `json:"ShipmentData"`
}

// TrackShipment GET /api/v1/packages/json/?waybill=
func (d *DelhiveryCourier) TrackShipment(ctx context.Context, trackingNumber string) (*TrackingInfo, error) {
	path := "/api/v1/packages/json/?waybill=" + url.QueryEscape(trackingNumber)

	var resp delhiveryTrackResponse
	if err := d.do(ctx, "track_shipment", http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	if len(resp.ShipmentData) == 0 {
		return nil, &Error{Courier: ProviderDelhivery, Op: "track_shipment", Err: fmt.Errorf("waybill %s not found", trackingNumber)}
	}

	s := resp.ShipmentData[0].Shipment
	return &TrackingInfo{
		TrackingNumber: trackingNumber,
		Status:         s.Status.Status,
		Location:       s.Status.StatusLocation,
		EstimatedAt:    parseTime(s.ExpectedDeliveryDate),
		Delivered:      strings.EqualFold(s.Status.Status, "Delivered"),
		UpdatedAt:      parseTime(s.Status.StatusDateTime),
	}, nil
}

func (d *DelhiveryCourier) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out interface{}) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveExternalCall(ProviderDelhivery, op, start, err) }()

	httpReq, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return &Error{Courier: ProviderDelhivery, Op: op, Err: err}
	}
	httpReq.Header.Set("Authorization", "Token "+d.token)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	return doJSON(d.client, httpReq, ProviderDelhivery, op, out)
}

// doJSON 发送请求并解析 JSON 响应，非 2xx 转换为 *Error
func doJSON(client *http.Client, req *http.Request, provider, op string, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return &Error{Courier: provider, Op: op, Retryable: !errors.Is(err, context.Canceled), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Courier: provider, Op: op, StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Courier:    provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        errors.New(errorMessage(raw, resp.StatusCode)),
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Courier: provider, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// errorMessage 物流商错误体里 message/error/rmk 都有可能
func errorMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		RMK     string `json:"rmk"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, m := range []string{body.Message, body.Error, body.RMK} {
			if m != "" {
				return m
			}
		}
	}
	return http.StatusText(status)
}

func joinAddress(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
