// webhook_storm 向本地服务并发投递同一笔已签名的 Cashfree 支付成功回调，
// 用于验证重复投递只会确认一次订单
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rakhi_store/internal/domain/payment/gateway"
	"rakhi_store/internal/pkg/config"
)

var httpClient *http.Client

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 500
	t.MaxIdleConnsPerHost = 500
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	orderNumber := flag.String("order", "", "order number to confirm")
	amount := flag.Float64("amount", 0, "paid amount, must match the order total")
	paymentID := flag.String("payment", "cf_storm_1", "gateway payment id")
	total := flag.Int("n", 200, "concurrent deliveries")
	flag.Parse()

	if *orderNumber == "" {
		fmt.Println("-order is required")
		return
	}

	config.LoadConfig()
	secret := config.GlobalConfig.Payment.Cashfree.SecretKey

	body, _ := json.Marshal(map[string]interface{}{
		"type":       "PAYMENT_SUCCESS_WEBHOOK",
		"event_time": time.Now().Format(time.RFC3339),
		"data": map[string]interface{}{
			"order": map[string]interface{}{
				"order_id":       *orderNumber,
				"order_amount":   *amount,
				"order_currency": "INR",
			},
			"payment": map[string]interface{}{
				"cf_payment_id":  *paymentID,
				"payment_status": "SUCCESS",
				"payment_amount": *amount,
			},
		},
	})
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := gateway.SignCashfree(secret, ts, body)

	fmt.Printf("开始投递：%d 个并发回调 (订单: %s)...\n", *total, *orderNumber)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = make(map[int]int)
	)
	start := time.Now()
	for i := 0; i < *total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := deliver(*baseURL, ts, signature, body)
			mu.Lock()
			statuses[code]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("投递结束，耗时: %v\n", duration)
	for code, n := range statuses {
		fmt.Printf("HTTP %d: %d\n", code, n)
	}
	fmt.Println("--------------------------------------------------")

	checkOrder(*baseURL, *orderNumber)
}

func deliver(baseURL, ts, signature string, body []byte) int {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/payment/webhook", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-webhook-timestamp", ts)
	req.Header.Set("x-webhook-signature", signature)

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func checkOrder(baseURL, orderNumber string) {
	resp, err := httpClient.Get(baseURL + "/api/orders/" + orderNumber)
	if err != nil {
		fmt.Printf("查询订单失败: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var out struct {
		Data struct {
			Status        string `json:"status"`
			PaymentStatus string `json:"paymentStatus"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Printf("解析订单失败: %v\n", err)
		return
	}
	fmt.Printf("订单状态: %s, 支付状态: %s\n", out.Data.Status, out.Data.PaymentStatus)
}
