package mollie

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/payrecon/internal/constants"

	"github.com/shopspring/decimal"
)

func parseResource(raw map[string]interface{}) (*Resource, error) {
	id := strings.TrimSpace(readString(raw, "id"))
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrResponseInvalid)
	}
	kind := strings.ToLower(strings.TrimSpace(readString(raw, "resource")))
	if kind == "" {
		kind = KindOf(id)
	}
	if kind != constants.RemoteKindPayment && kind != constants.RemoteKindOrder {
		return nil, fmt.Errorf("%w: unknown resource kind %q", ErrResponseInvalid, kind)
	}
	status := strings.ToLower(strings.TrimSpace(readString(raw, "status")))
	if status == "" {
		return nil, fmt.Errorf("%w: missing status", ErrResponseInvalid)
	}
	amount, currency := readAmount(raw, "amount")
	refunded, _ := readAmount(raw, "amountRefunded")

	resource := &Resource{
		ID:             id,
		Kind:           kind,
		Status:         status,
		Amount:         amount,
		Currency:       currency,
		AmountRefunded: refunded,
		Raw:            raw,
	}
	for _, item := range readArray(raw, "lines") {
		lineMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		resource.Lines = append(resource.Lines, Line{
			ID:               readString(lineMap, "id"),
			Status:           strings.ToLower(readString(lineMap, "status")),
			Name:             readString(lineMap, "name"),
			Quantity:         readInt(lineMap, "quantity"),
			QuantityRefunded: readInt(lineMap, "quantityRefunded"),
			QuantityCanceled: readInt(lineMap, "quantityCanceled"),
		})
	}
	for _, item := range readArray(raw, "_embedded", "refunds") {
		refundMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		refundAmount, _ := readAmount(refundMap, "amount")
		refund := Refund{
			ID:     readString(refundMap, "id"),
			Status: strings.ToLower(readString(refundMap, "status")),
			Amount: refundAmount,
		}
		for _, line := range readArray(refundMap, "lines") {
			if lineMap, ok := line.(map[string]interface{}); ok {
				refund.LineIDs = append(refund.LineIDs, readString(lineMap, "id"))
			}
		}
		resource.Refunds = append(resource.Refunds, refund)
	}
	return resource, nil
}

func readAmount(raw map[string]interface{}, key string) (decimal.Decimal, string) {
	value := strings.TrimSpace(readString(raw, key, "value"))
	currency := strings.ToUpper(strings.TrimSpace(readString(raw, key, "currency")))
	if value == "" {
		return decimal.Zero, currency
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, currency
	}
	return amount, currency
}

func readString(raw map[string]interface{}, path ...string) string {
	value := readPath(raw, path...)
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func readInt(raw map[string]interface{}, path ...string) int {
	switch v := readPath(raw, path...).(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func readArray(raw map[string]interface{}, path ...string) []interface{} {
	if items, ok := readPath(raw, path...).([]interface{}); ok {
		return items
	}
	return nil
}

func readPath(raw map[string]interface{}, path ...string) interface{} {
	if raw == nil || len(path) == 0 {
		return nil
	}
	var current interface{} = raw
	for _, key := range path {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = node[key]
		if !ok {
			return nil
		}
	}
	return current
}
