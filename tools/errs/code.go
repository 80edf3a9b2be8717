package errs

import "net/http"

// 错误码
const (
	ServerInternalError = 500

	AuthError              = 1001 // 凭证缺失/非法/过期，连接被拒
	AuthorizationDenied    = 1002 // 主体合法但无权订阅该频道
	InvalidRequest         = 1003 // 请求本身不合法（自己和自己私聊等）
	EmptyMessage           = 1004 // 内容与附件都为空，属于 InvalidRequest
	NotFound               = 1005 // 不存在或不可见，两者不区分
	NotAParticipant        = 1006 // 发送者不是会话成员
	TransientStoreConflict = 1007 // 唯一约束冲突，仅内部重试使用
)

var (
	ErrInternal               = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrAuth                   = NewCodeError(AuthError, "AuthError")
	ErrAuthorizationDenied    = NewCodeError(AuthorizationDenied, "AuthorizationDenied")
	ErrInvalidRequest         = NewCodeError(InvalidRequest, "InvalidRequest")
	ErrEmptyMessage           = NewCodeError(EmptyMessage, "EmptyMessage")
	ErrNotFound               = NewCodeError(NotFound, "NotFound")
	ErrNotAParticipant        = NewCodeError(NotAParticipant, "NotAParticipant")
	ErrTransientStoreConflict = NewCodeError(TransientStoreConflict, "TransientStoreConflict")
)

func init() {
	_ = DefaultCodeRelation.Add(InvalidRequest, EmptyMessage)
}

// HTTPStatus 错误码 -> HTTP 状态码
func HTTPStatus(code int) int {
	switch code {
	case AuthError:
		return http.StatusUnauthorized
	case AuthorizationDenied, NotAParticipant:
		return http.StatusForbidden
	case InvalidRequest, EmptyMessage:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
