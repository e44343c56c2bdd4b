package constants

// 本地订单状态常量
const (
	OrderStatusPending    = "pending"
	OrderStatusOnHold     = "on-hold"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
	OrderStatusFailed     = "failed"
)

// 远端资源类型常量
const (
	RemoteKindPayment = "payment"
	RemoteKindOrder   = "order"
)

// 远端资源 ID 前缀
const (
	RemotePaymentIDPrefix = "tr_"
	RemoteOrderIDPrefix   = "ord_"
)

// 远端资源状态常量
const (
	RemoteStatusCreated           = "created"
	RemoteStatusOpen              = "open"
	RemoteStatusPending           = "pending"
	RemoteStatusAuthorized        = "authorized"
	RemoteStatusPaid              = "paid"
	RemoteStatusCanceled          = "canceled"
	RemoteStatusExpired           = "expired"
	RemoteStatusShipping          = "shipping"
	RemoteStatusCompleted         = "completed"
	RemoteStatusFailed            = "failed"
	RemoteStatusRefunded          = "refunded"
	RemoteStatusPartiallyRefunded = "partially-refunded"
)

// 订单状态变更来源
const (
	TransitionSourceRemote = "remote"
	TransitionSourceManual = "manual"
	TransitionSourceExpiry = "expiry"
	TransitionSourceHost   = "host"
)

// 订单备注来源（非状态流转写入的备注）
const (
	NoteSourceRemoteAction = "remote_action"
	NoteSourceRemoteLines  = "remote_lines"
)

// 网关处理器类型
const (
	GatewayHandlerPSP  = "psp"
	GatewayHandlerHost = "host"
)

// 远端行项目账本类型
const (
	RemoteLineKindRefunded  = "refunded"
	RemoteLineKindCancelled = "cancelled"
)

// 队列与任务名称
const (
	QueueDefault         = "default"
	TaskExpirySweep      = "psp:expiry_sweep"
	TaskWebhookReconcile = "psp:webhook_reconcile"
)

// 过期扫描调度名称
const (
	ExpirySweepName = "cancel_unpaid_orders"
)

// 订单备注文案
const (
	NoteShipMissingOrderID   = "Order contains PSP payment method, but not a PSP order ID. Processing capture canceled."
	NoteShipSucceeded        = "Order successfully updated to shipped at PSP, capture of funds underway."
	NoteShipDeferred         = "Order not paid or authorized at PSP yet, can not be shipped."
	NoteCancelMissingOrderID = "Order contains PSP payment method, but not a valid PSP order ID. Canceling order failed."
	NoteCancelSucceeded      = "Order also cancelled at PSP."
	NoteCancelNotPossible    = "Order could not be canceled at PSP, because order status is %s."
	NoteExpiryCancelled      = "Unpaid order cancelled - time limit reached."
	NoteLinesRefunded        = "%s items refunded locally and at PSP."
	NoteLinesCancelled       = "%s items cancelled locally and at PSP."
	NoteStatusFromRemote     = "Order status changed from %s to %s by PSP status %s (%s)."
	NoteStatusManual         = "Order status changed from %s to %s by operator."
)
