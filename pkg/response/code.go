package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 用户/鉴权错误 100xx
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 订单模块错误 200xx
	ErrOrderNotFound       = 20001
	ErrProductNotFound     = 20002
	ErrInsufficientStock   = 20003
	ErrInvalidTransition   = 20004
	ErrPaymentNotCompleted = 20005
	ErrOrderNotPayable     = 20006
	ErrIssueNotFound       = 20007
	ErrUnknownTemplate     = 20008
	ErrShipmentUnsupported = 20009
	ErrConcurrentUpdate    = 20010
	ErrNotificationState   = 20011

	// 外部集成错误 300xx
	ErrPaymentGateway   = 30001
	ErrCourier          = 30002
	ErrInvalidSignature = 30003
	ErrMalformedPayload = 30004
	ErrEmailDelivery    = 30005

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
