package shared

import "strings"

var messages = map[string]string{
	"error.bad_request":              "bad request",
	"error.unauthorized":             "unauthorized",
	"error.forbidden":                "forbidden",
	"error.not_found":                "not found",
	"error.internal":                 "internal error",
	"error.order_not_found":          "order not found",
	"error.order_id_invalid":         "order id invalid",
	"error.order_key_invalid":        "order key invalid",
	"error.order_fetch_failed":       "order fetch failed",
	"error.order_create_failed":      "order create failed",
	"error.order_update_failed":      "order update failed",
	"error.order_status_invalid":     "order status invalid",
	"error.order_status_terminal":    "order status is terminal",
	"error.order_status_conflict":    "order status changed concurrently",
	"error.gateway_unsupported":      "payment handler unsupported",
	"error.remote_id_invalid":        "remote resource id invalid",
	"error.remote_id_conflict":       "remote resource id already assigned",
	"error.remote_resource_missing":  "order has no remote resource",
	"error.remote_call_failed":       "remote call failed",
	"error.remote_line_ids_required": "remote line ids required",
	"error.refund_amount_invalid":    "refund amount invalid",
	"error.note_fetch_failed":        "order note fetch failed",
	"error.sweep_failed":             "expiry sweep failed",
	"error.sweep_state_fetch_failed": "expiry sweep state fetch failed",
	"error.token_invalid":            "token invalid",
	"error.token_expired":            "token expired",
	"error.rate_limited":             "too many requests",
	"error.rate_limit_unavailable":   "rate limit unavailable",
}

// Message 返回错误键对应的提示文案，未登记的键原样返回
func Message(key string) string {
	key = strings.TrimSpace(key)
	if msg, ok := messages[key]; ok {
		return msg
	}
	return key
}
