package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/metrics"

	"go.uber.org/zap"
)

const (
	ProviderShiprocket = "shiprocket"

	shiprocketBaseURL     = "https://apiv2.shiprocket.in/v1/external"
	shiprocketTrackingURL = "https://shiprocket.co/tracking/"
	// 登录 token 有效期 10 天，提前刷新
	shiprocketTokenTTL = 9 * 24 * time.Hour
)

// ShiprocketCourier Shiprocket 聚合物流
type ShiprocketCourier struct {
	email    string
	password string
	baseURL  string
	client   *http.Client
	metrics  *metrics.MetricsCollector
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewShiprocketCourier 创建 Shiprocket 适配器
func NewShiprocketCourier(cfg config.ShiprocketConfig, timeout time.Duration, m *metrics.MetricsCollector) (*ShiprocketCourier, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errors.New("shiprocket credentials missing")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = shiprocketBaseURL
	}
	return &ShiprocketCourier{
		email:    cfg.Email,
		password: cfg.Password,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		metrics:  m,
		now:      time.Now,
	}, nil
}

func (s *ShiprocketCourier) Name() string { return ProviderShiprocket }

func (s *ShiprocketCourier) TrackingURL(trackingNumber string) string {
	return shiprocketTrackingURL + url.PathEscape(trackingNumber)
}

type shiprocketItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

type shiprocketOrderRequest struct {
	OrderID             string           `json:"order_id"`
	OrderDate           string           `json:"order_date"`
	PickupLocation      string           `json:"pickup_location"`
	BillingCustomerName string           `json:"billing_customer_name"`
	BillingLastName     string           `json:"billing_last_name"`
	BillingAddress      string           `json:"billing_address"`
	BillingAddress2     string           `json:"billing_address_2,omitempty"`
	BillingCity         string           `json:"billing_city"`
	BillingPincode      string           `json:"billing_pincode"`
	BillingState        string           `json:"billing_state"`
	BillingCountry      string           `json:"billing_country"`
	BillingEmail        string           `json:"billing_email"`
	BillingPhone        string           `json:"billing_phone"`
	ShippingIsBilling   bool             `json:"shipping_is_billing"`
	OrderItems          []shiprocketItem `json:"order_items"`
	PaymentMethod       string           `json:"payment_method"`
	SubTotal            float64          `json:"sub_total"`
	Length              float64          `json:"length"`
	Breadth             float64          `json:"breadth"`
	Height              float64          `json:"height"`
	Weight              float64          `json:"weight"` // kg
}

type shiprocketOrderResponse struct {
	OrderID    json.Number `json:"order_id"`
	ShipmentID json.Number `json:"shipment_id"`
	Status     string      `json:"status"`
	AWBCode    string      `json:"awb_code"`
}

type shiprocketAssignResponse struct {
	AWBAssignStatus int `json:"awb_assign_status"`
	Response        struct {
		Data struct {
			AWBCode     string      `json:"awb_code"`
			CourierName string      `json:"courier_name"`
			ShipmentID  json.Number `json:"shipment_id"`
		} `json:"data"`
	} `json:"response"`
	Message string `json:"message"`
}

// CreateShipment 先创建订单，再分配运单号
func (s *ShiprocketCourier) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	items := make([]shiprocketItem, 0, len(req.Items))
	for _, it := range req.Items {
		sku := it.SKU
		if sku == "" {
			sku = it.Name
		}
		items = append(items, shiprocketItem{
			Name:         it.Name,
			SKU:          sku,
			Units:        it.Quantity,
			SellingPrice: it.UnitPrice.Round(2).InexactFloat64(),
		})
	}

	payment := "Prepaid"
	if req.PaymentMode == PaymentCOD {
		payment = "COD"
	}

	payload := shiprocketOrderRequest{
		OrderID:             req.OrderNumber,
		OrderDate:           req.OrderDate.Format("2006-01-02 15:04"),
		PickupLocation:      req.PickupName,
		BillingCustomerName: req.Delivery.Name,
		BillingAddress:      req.Delivery.Line1,
		BillingAddress2:     req.Delivery.Line2,
		BillingCity:         req.Delivery.City,
		BillingPincode:      req.Delivery.PostalCode,
		BillingState:        req.Delivery.State,
		BillingCountry:      req.Delivery.Country,
		BillingEmail:        req.Delivery.Email,
		BillingPhone:        req.Delivery.Phone,
		ShippingIsBilling:   true,
		OrderItems:          items,
		PaymentMethod:       payment,
		SubTotal:            req.DeclaredValue.Round(2).InexactFloat64(),
		// 礼盒标准包装尺寸，单位 cm
		Length:  20,
		Breadth: 15,
		Height:  5,
		Weight:  float64(req.TotalWeightGrams()) / 1000,
	}

	var order shiprocketOrderResponse
	if err := s.call(ctx, "create_order", http.MethodPost, "/orders/create/adhoc", payload, &order); err != nil {
		return nil, err
	}
	if order.ShipmentID == "" {
		return nil, &Error{Courier: ProviderShiprocket, Op: "create_order", Err: errors.New("no shipment_id in response")}
	}

	result := &ShipmentResult{ProviderRef: order.ShipmentID.String()}
	if order.AWBCode != "" {
		result.TrackingNumber = order.AWBCode
		result.AWBNumber = order.AWBCode
		return result, nil
	}

	var assign shiprocketAssignResponse
	body := map[string]string{"shipment_id": order.ShipmentID.String()}
	if err := s.call(ctx, "assign_awb", http.MethodPost, "/courier/assign/awb", body, &assign); err != nil {
		return nil, err
	}
	awb := assign.Response.Data.AWBCode
	if assign.AWBAssignStatus != 1 || awb == "" {
		msg := assign.Message
		if msg == "" {
			msg = "awb not assigned"
		}
		return nil, &Error{Courier: ProviderShiprocket, Op: "assign_awb", Err: errors.New(msg)}
	}

	result.TrackingNumber = awb
	result.AWBNumber = awb
	return result, nil
}

type shiprocketTrackResponse struct {
	TrackingData struct {
		TrackStatus    int    `json:"track_status"`
		ShipmentStatus int    `json:"shipment_status"`
		ETD            string `json:"etd"`
		Error          string `json:"error"`
		ShipmentTrack  []struct {
			AWBCode       string `json:"awb_code"`
			CurrentStatus string `json:"current_status"`
			Destination   string `json:"destination"`
			EDD           string `json:"edd"`
			DeliveredDate string `json:"delivered_date"`
		} `json:"shipment_track"`
		Activities []struct {
			Date     string `json:"date"`
			Activity string `json:"activity"`
			Location string `json:"location"`
		} `json:"shipment_track_activities"`
	} `json:"tracking_data"`
}

// shiprocketDelivered Shiprocket shipment_status 中 7 表示已签收
const shiprocketDelivered = 7

// TrackShipment GET /courier/track/awb/{awb}
func (s *ShiprocketCourier) TrackShipment(ctx context.Context, trackingNumber string) (*TrackingInfo, error) {
	var resp shiprocketTrackResponse
	if err := s.call(ctx, "track_shipment", http.MethodGet, "/courier/track/awb/"+url.PathEscape(trackingNumber), nil, &resp); err != nil {
		return nil, err
	}
	td := resp.TrackingData
	if td.TrackStatus == 0 && len(td.ShipmentTrack) == 0 {
		msg := td.Error
		if msg == "" {
			msg = fmt.Sprintf("awb %s not found", trackingNumber)
		}
		return nil, &Error{Courier: ProviderShiprocket, Op: "track_shipment", Err: errors.New(msg)}
	}

	info := &TrackingInfo{TrackingNumber: trackingNumber, EstimatedAt: parseTime(td.ETD)}
	if len(td.ShipmentTrack) > 0 {
		st := td.ShipmentTrack[0]
		info.Status = st.CurrentStatus
		info.Location = st.Destination
		if eta := parseTime(st.EDD); eta != nil {
			info.EstimatedAt = eta
		}
		info.Delivered = strings.EqualFold(st.CurrentStatus, "Delivered") || st.DeliveredDate != ""
	}
	if len(td.Activities) > 0 {
		latest := td.Activities[0]
		if latest.Location != "" {
			info.Location = latest.Location
		}
		info.UpdatedAt = parseTime(latest.Date)
	}
	if td.ShipmentStatus == shiprocketDelivered {
		info.Delivered = true
	}
	if info.Status == "" {
		info.Status = strconv.Itoa(td.ShipmentStatus)
	}
	return info, nil
}

// call 带 token 的请求，401 时重新登录一次
func (s *ShiprocketCourier) call(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveExternalCall(ProviderShiprocket, op, start, err) }()

	for attempt := 0; attempt < 2; attempt++ {
		token, tErr := s.authToken(ctx, attempt > 0)
		if tErr != nil {
			return tErr
		}
		err = s.send(ctx, op, method, path, token, in, out)
		var cErr *Error
		if attempt == 0 && errors.As(err, &cErr) && cErr.StatusCode == http.StatusUnauthorized {
			logger.Log.Info("Shiprocket token rejected, logging in again", zap.String("op", op))
			continue
		}
		return err
	}
	return err
}

func (s *ShiprocketCourier) send(ctx context.Context, op, method, path, token string, in, out interface{}) error {
	var body *bytes.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &Error{Courier: ProviderShiprocket, Op: op, Err: err}
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return &Error{Courier: ProviderShiprocket, Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return doJSON(s.client, httpReq, ProviderShiprocket, op, out)
}

// authToken 获取缓存的登录 token，refresh 为 true 时强制重新登录
func (s *ShiprocketCourier) authToken(ctx context.Context, refresh bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !refresh && s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}

	var resp struct {
		Token string `json:"token"`
	}
	creds := map[string]string{"email": s.email, "password": s.password}
	if err := s.send(ctx, "login", http.MethodPost, "/auth/login", "", creds, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &Error{Courier: ProviderShiprocket, Op: "login", Err: errors.New("no token in response")}
	}

	s.token = resp.Token
	s.expiresAt = s.now().Add(shiprocketTokenTTL)
	return s.token, nil
}
