package service

import (
	"strings"

	"github.com/payrecon/internal/constants"
)

var knownOrderStatuses = map[string]bool{
	constants.OrderStatusPending:    true,
	constants.OrderStatusOnHold:     true,
	constants.OrderStatusProcessing: true,
	constants.OrderStatusCompleted:  true,
	constants.OrderStatusCancelled:  true,
	constants.OrderStatusRefunded:   true,
	constants.OrderStatusFailed:     true,
}

var terminalOrderStatuses = map[string]bool{
	constants.OrderStatusCompleted: true,
	constants.OrderStatusCancelled: true,
	constants.OrderStatusRefunded:  true,
	constants.OrderStatusFailed:    true,
}

func normalizeOrderStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsKnownOrderStatus 是否为合法订单状态
func IsKnownOrderStatus(status string) bool {
	return knownOrderStatuses[normalizeOrderStatus(status)]
}

// IsTerminalOrderStatus 是否为终态，终态订单不再接受自动流转
func IsTerminalOrderStatus(status string) bool {
	return terminalOrderStatuses[normalizeOrderStatus(status)]
}

// isAutomaticSource 自动来源（远端、过期扫描、宿主平台）受终态保护
func isAutomaticSource(source string) bool {
	switch source {
	case constants.TransitionSourceRemote, constants.TransitionSourceExpiry, constants.TransitionSourceHost:
		return true
	default:
		return false
	}
}
