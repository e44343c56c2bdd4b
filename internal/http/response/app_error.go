package response

// AppError 统一错误包装，Key 为消息表中的键
type AppError struct {
	Code    int
	Key     string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapKeyedError 包装带消息键的错误
func WrapKeyedError(code int, key, message string, err error) *AppError {
	appErr := WrapError(code, message, err)
	appErr.Key = key
	return appErr
}
