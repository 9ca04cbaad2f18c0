package errors

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// errorMessages 错误码到消息的登记表，由register在包初始化时填充
var errorMessages = make(map[ErrorCode]string)

func register(code ErrorCode, message string) ErrorCode {
	if _, dup := errorMessages[code]; dup {
		panic(fmt.Sprintf("errors: 错误码 %d 重复登记", code))
	}
	errorMessages[code] = message
	return code
}

// 通用错误 (1000-1999)
var (
	ErrUnknown          = register(1000, "未知错误")
	ErrInvalidParam     = register(1001, "无效的参数")
	ErrNotFound         = register(1002, "资源未找到")
	ErrAlreadyExists    = register(1003, "资源已存在")
	ErrPermissionDenied = register(1004, "权限不足")
	ErrTimeout          = register(1005, "操作超时")
	ErrCanceled         = register(1006, "操作已取消")
	ErrNotImplemented   = register(1007, "功能未实现")
)

// 对局错误 (2000-2999)
var (
	ErrGameNotStarted     = register(2000, "游戏未开始")
	ErrGameAlreadyStarted = register(2001, "游戏已经开始")
	ErrGameFinished       = register(2002, "游戏已结束")
	ErrGameStateError     = register(2003, "游戏状态错误")
	ErrInvalidFlip        = register(2004, "无效的翻牌操作")
	ErrNotYourTurn        = register(2005, "还没轮到该玩家")
	ErrInvalidBoardSize   = register(2006, "无效的棋盘规格")
	ErrInvalidMatchType   = register(2007, "无效的配对规则")
	ErrInvalidDifficulty  = register(2008, "无效的AI难度")
	ErrSessionNotFound    = register(2009, "游戏会话不存在")
	ErrTurnInProgress     = register(2010, "回合正在结算中")
)

// AI错误 (3000-3999)
var (
	ErrAIDecision    = register(3000, "AI决策失败")
	ErrAINoCards     = register(3001, "可用的牌不足")
	ErrAITimeout     = register(3002, "AI决策超时")
	ErrAIInvalidSeat = register(3003, "无效的AI席位")
)

// 通信错误 (4000-4999)
var (
	ErrWebSocketConnect = register(4000, "WebSocket连接失败")
	ErrWebSocketSend    = register(4001, "WebSocket发送失败")
	ErrWebSocketReceive = register(4002, "WebSocket接收失败")
	ErrWebSocketClosed  = register(4003, "WebSocket连接已关闭")
	ErrMessageFormat    = register(4004, "消息格式错误")
)

// 数据库错误 (5000-5999)
var (
	ErrDatabaseConnect = register(5000, "数据库连接失败")
	ErrDatabaseQuery   = register(5001, "数据库查询失败")
	ErrDatabaseInsert  = register(5002, "数据库插入失败")
	ErrDatabaseUpdate  = register(5003, "数据库更新失败")
	ErrDatabaseDelete  = register(5004, "数据库删除失败")
	ErrTransaction     = register(5005, "事务处理失败")
	ErrDataIntegrity   = register(5006, "数据完整性错误")
)

// 配置错误 (6000-6999)
var (
	ErrConfigLoad     = register(6000, "配置加载失败")
	ErrConfigParse    = register(6001, "配置解析失败")
	ErrConfigValidate = register(6002, "配置验证失败")
	ErrConfigMissing  = register(6003, "配置项缺失")
)

// 安全错误 (7000-7999)
var (
	ErrAuthentication    = register(7000, "认证失败")
	ErrAuthorization     = register(7001, "授权失败")
	ErrTokenExpired      = register(7002, "令牌已过期")
	ErrTokenInvalid      = register(7003, "无效的令牌")
	ErrRateLimitExceeded = register(7004, "请求频率超限")
)

// AppError 带错误码、详情和调用栈的应用错误
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details"`
	Cause   error        `json:"-"`
	Stack   []StackFrame `json:"stack,omitempty"`
}

// StackFrame 调用栈中的一帧
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *AppError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
}

// Unwrap 返回原因错误
func (e *AppError) Unwrap() error { return e.Cause }

// WithDetails 设置详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 设置原因错误，Details为空时用原因填充
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if e.Details == "" && cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// New 按错误码创建应用错误，多个详情用分号拼接
func New(code ErrorCode, details ...string) *AppError {
	message, registered := errorMessages[code]
	if !registered {
		message = errorMessages[ErrUnknown]
	}
	e := &AppError{Code: code, Message: message, Details: strings.Join(details, "; ")}
	e.captureStack(2)
	return e
}

// Newf 创建带格式化详情的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 把任意错误包装成应用错误。已经是AppError的保留原始错误码，
// 新的详情拼接到已有详情前面。
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		if prefix := strings.Join(details, "; "); prefix != "" {
			appErr.Details = prefix + "; " + appErr.Details
		}
		return appErr
	}
	return New(code, details...).WithCause(err)
}

// Wrapf 包装错误并格式化详情
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码，非AppError按未知错误处理
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case nil:
		return 0
	case *AppError:
		return e.Code
	default:
		return ErrUnknown
	}
}

// 调用栈最多保留的帧数
const maxStackFrames = 10

// captureStack 捕获调用栈，跳过runtime和本包自身的帧
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for len(e.Stack) < maxStackFrames {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "github.com/wfunc/memory-game/internal/errors") {
			e.Stack = append(e.Stack, StackFrame{
				File:     frame.File,
				Line:     frame.Line,
				Function: frame.Function,
			})
		}
		if !more {
			return
		}
	}
}

// GetStack 把调用栈格式化成多行文本
func (e *AppError) GetStack() string {
	var b strings.Builder
	for i, frame := range e.Stack {
		fmt.Fprintf(&b, "%d. %s\n   %s:%d\n", i+1, frame.Function, frame.File, frame.Line)
	}
	return b.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrSessionNotFound:
		return 404
	case e.Code == ErrPermissionDenied:
		return 403
	case e.Code == ErrTimeout:
		return 408
	case e.Code == ErrRateLimitExceeded:
		return 429
	case e.Code >= 1001 && e.Code <= 1003:
		return 400
	case e.Code >= 2000 && e.Code <= 2999:
		return 400
	case e.Code >= 7000 && e.Code <= 7003:
		return 401
	case e.Code >= 5000 && e.Code <= 5999:
		return 503
	default:
		return 500
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrTimeout, ErrAITimeout, ErrWebSocketConnect, ErrDatabaseConnect, ErrTurnInProgress:
		return true
	}
	return false
}

// IsCritical 判断是否为需要立即处理的严重错误
func IsCritical(err error) bool {
	switch GetCode(err) {
	case ErrDatabaseConnect, ErrConfigLoad, ErrConfigMissing, ErrDataIntegrity:
		return true
	}
	return false
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 包装给API层的错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Timestamp: time.Now().Unix(),
		Error:     err,
		RequestID: requestID,
	}
}
