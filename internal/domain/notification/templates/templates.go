// Package templates 订单邮件模板，渲染为纯函数，不做任何 IO
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"
)

// Kind 模板类型
type Kind string

const (
	OrderConfirmation Kind = "order_confirmation"
	OrderShipped      Kind = "order_shipped"
	OrderDelivered    Kind = "order_delivered"
)

var ErrUnknownKind = errors.New("unknown template kind")

// ParseKind 校验模板类型
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := subjects[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

var subjects = map[Kind]string{
	OrderConfirmation: "Order {{.OrderNumber}} confirmed",
	OrderShipped:      "Your order {{.OrderNumber}} has shipped",
	OrderDelivered:    "Your order {{.OrderNumber}} has been delivered",
}

//go:embed files/*.tmpl
var files embed.FS

var funcs = map[string]interface{}{
	"money": formatMoney,
	"date":  formatDate,
}

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.New("").Funcs(htmltemplate.FuncMap(funcs)).ParseFS(files, "files/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.New("").Funcs(texttemplate.FuncMap(funcs)).ParseFS(files, "files/*.txt.tmpl"))
)

// Item 邮件中的商品行
type Item struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal 小计
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Data 渲染参数
type Data struct {
	StoreName    string
	SupportEmail string
	OrderURL     string

	OrderNumber  string
	CustomerName string
	Currency     string
	Items        []Item
	Subtotal     decimal.Decimal
	Shipping     decimal.Decimal
	Total        decimal.Decimal
	Address      []string // 收货地址，每行一项

	TrackingNumber    string
	DeliveryPartner   string
	TrackingURL       string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
}

// FreeShipping 是否免运费
func (d Data) FreeShipping() bool { return d.Shipping.IsZero() }

// Message 渲染结果
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Render 渲染邮件
func Render(kind Kind, data Data) (Message, error) {
	subjectTmpl, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if data.OrderNumber == "" {
		return Message{}, errors.New("order number is required")
	}
	if data.StoreName == "" {
		data.StoreName = "Rakhi Store"
	}

	subject, err := renderText("subject", subjectTmpl, data)
	if err != nil {
		return Message{}, err
	}

	var html bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, string(kind)+".html.tmpl", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	var text bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, string(kind)+".txt.tmpl", data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", kind, err)
	}

	return Message{
		Subject: data.StoreName + ": " + subject,
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()) + "\n",
	}, nil
}

func renderText(name, tmpl string, data Data) (string, error) {
	t, err := texttemplate.New(name).Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatMoney(currency string, amount decimal.Decimal) string {
	switch currency {
	case "", "INR":
		return "₹" + amount.StringFixed(2)
	case "CNY":
		return "¥" + amount.StringFixed(2)
	}
	return currency + " " + amount.StringFixed(2)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02 Jan 2006")
}
