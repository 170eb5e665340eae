package types

import (
	"context"
)

type RequestClient interface {
	Execute(ctx context.Context, endpoint, token string, opts *RequestOptions) ([]byte, error)
}

// RequestOptions describes one call. A nil options value is a plain GET.
type RequestOptions struct {
	Method  string
	Body    interface{}
	Headers map[string]string
}

func (o *RequestOptions) GetMethod() string {
	if o == nil || o.Method == "" {
		return "GET"
	}
	return o.Method
}
