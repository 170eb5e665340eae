package client

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-gateway-console/types"
)

const acceptEncoding = "gzip, br"

// decodeBody returns the response body with any content encoding removed.
// The returned slice is owned by the caller.
func decodeBody(resp *fasthttp.Response) ([]byte, error) {
	encoding := string(bytes.ToLower(bytes.TrimSpace(resp.Header.ContentEncoding())))

	switch encoding {
	case "", "identity":
		return copyBytes(resp.Body()), nil
	case "gzip":
		body, err := resp.BodyGunzip()
		if err != nil {
			return nil, types.WrapError(err, "failed to decode gzip body")
		}
		return copyBytes(body), nil
	case "deflate":
		body, err := resp.BodyInflate()
		if err != nil {
			return nil, types.WrapError(err, "failed to decode deflate body")
		}
		return copyBytes(body), nil
	case "br":
		body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(resp.Body())))
		if err != nil {
			return nil, types.WrapError(err, "failed to decode brotli body")
		}
		return body, nil
	default:
		return nil, types.NewErrorf("unsupported content encoding: %s", encoding)
	}
}

func copyBytes(src []byte) []byte {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
