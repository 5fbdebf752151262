package erp

import (
	"encoding/json"
	"strings"

	"github.com/spec-kit/lead-router/internal/domain"
)

// OrderPayload is the body the ERP expects for a new order.
type OrderPayload struct {
	OrderID             int64   `json:"order_id"`
	CustomerName        string  `json:"customer_name"`
	TotalPrice          float64 `json:"total_price"`
	Status              int16   `json:"status"`
	ForeignID           *int64  `json:"foreign_id"`
	CustomerMobile      string  `json:"customer_mobile"`
	CustomerEmail       string  `json:"customer_email"`
	CustomerExtraPhones string  `json:"customer_extra_phones"`
	AddressInfo         string  `json:"address_info"`
	Comment             string  `json:"comment"`
	Goods               []Good  `json:"goods"`
}

// Good is one line item in the ERP payload.
type Good struct {
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
	IsGift     int     `json:"is_gift"`
}

// BuildPayload maps an order aggregate to the ERP wire shape.
func BuildPayload(agg domain.OrderAggregate) (OrderPayload, error) {
	payload := OrderPayload{
		OrderID:    agg.Order.ID,
		TotalPrice: agg.Order.TotalPrice,
		Status:     int16(agg.Order.Status),
		ForeignID:  agg.Order.ForeignID,
		Goods:      make([]Good, 0, len(agg.Items)),
	}
	if agg.Customer != nil {
		payload.CustomerName = agg.Customer.Name
		payload.CustomerMobile = agg.Customer.Phone
		payload.CustomerEmail = agg.Customer.Email
		payload.CustomerExtraPhones = agg.Customer.ExtraPhones
	}
	if agg.Detail != nil {
		address, err := json.Marshal(agg.Detail.AddressInfo)
		if err != nil {
			return OrderPayload{}, err
		}
		payload.AddressInfo = string(address)
		payload.Comment = agg.Detail.Comment
	}
	for _, item := range agg.Items {
		good := Good{ProductID: item.ProductID, Quantity: item.Quantity, TotalPrice: item.TotalPrice}
		if item.ProductType == domain.ProductTypeGift {
			good.IsGift = 1
		}
		payload.Goods = append(payload.Goods, good)
	}
	return payload, nil
}

// escaped returns a copy with every string field escaped for the ERP.
func (p OrderPayload) escaped() OrderPayload {
	p.CustomerName = escape(p.CustomerName)
	p.CustomerMobile = escape(p.CustomerMobile)
	p.CustomerEmail = escape(p.CustomerEmail)
	p.CustomerExtraPhones = escape(p.CustomerExtraPhones)
	p.AddressInfo = escape(p.AddressInfo)
	p.Comment = escape(p.Comment)
	return p
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\x00", `\0`,
)

// escape backslash-escapes quotes, backslashes and NUL bytes. The ERP unescapes string values on receipt.
func escape(s string) string {
	return escaper.Replace(s)
}
