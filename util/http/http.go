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
	Body       interface{}
	// Response 非空时响应体按 JSON 解析到这里
	Response interface{}
	// RawResponse 非空时保留原始响应字节（拉取 mask 图片等二进制内容）
	RawResponse *[]byte

	Timeout time.Duration
}
