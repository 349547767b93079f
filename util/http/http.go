package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{} // io.Reader / []byte 原样发送，其余 JSON 序列化
	Response   interface{} // 非 nil 时把响应体 JSON 反序列化进来

	Timeout time.Duration
}
