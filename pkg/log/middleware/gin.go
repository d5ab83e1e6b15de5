// Package middleware holds the gin interceptors shared by the HTTP surface.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"moff.io/wallet-bridge/pkg/common"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
	"moff.io/wallet-bridge/pkg/log/meta"
)

// responseBodyWriter tees the handler response so it can be logged.
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r responseBodyWriter) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

type httpInfo struct {
	RequestID     string            `json:"request_id,omitempty"`
	Headers       map[string]string `json:"headers"`
	Method        string            `json:"method"`
	RequestAPI    string            `json:"request_api,omitempty"`
	RemoteAddr    string            `json:"remote_addr,omitempty"`
	Response      *response         `json:"response,omitempty"`
	ExecutionTime string            `json:"execution_time,omitempty"`
}

func (in *httpInfo) String() string {
	return common.MustGetJSONString(in)
}

type response struct {
	ProtocolCode int         `json:"protocol_code"`
	Code         interface{} `json:"code,omitempty"`
	Message      interface{} `json:"msg,omitempty"`
	Error        interface{} `json:"error,omitempty"`
}

// RecoveredHTTPLog logs every request with its response summary and turns
// handler panics into reported errors and a 500.
func RecoveredHTTPLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rctx := meta.Begin(ctx.Request.Context())
		requestID := ctx.GetHeader(meta.RequestIDKey)
		if requestID == "" {
			requestID = common.NewCutUUIDString()
		}
		meta.WithValue(rctx, meta.RequestIDKey, requestID)
		ctx.Request = ctx.Request.WithContext(rctx)
		ctx.Header(meta.RequestIDKey, requestID)

		w := &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: ctx.Writer}
		ctx.Writer = w

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error(errors.ErrorfAndReport("%v", r))
				ctx.Abort()
			}
			logHTTP(ctx, w, requestID, start)
		}()
		ctx.Next()
	}
}

const defaultRequestTimeout = time.Second * 60

// TimeoutHTTP bounds the request context. A non-positive timeout falls back
// to the default.
func TimeoutHTTP(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return func(ctx *gin.Context) {
		timeoutCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()
		ctx.Request = ctx.Request.WithContext(timeoutCtx)
		ctx.Next()
	}
}

func logHTTP(ctx *gin.Context, w *responseBodyWriter, requestID string, start time.Time) {
	if !ctx.Writer.Written() && !ctx.IsWebsocket() {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code": 5000,
			"msg":  "Server internal error",
		})
	}

	status := w.Status()
	info := &httpInfo{
		RequestID:     requestID,
		Headers:       requestHeaderFilter(ctx.Request.Header),
		Method:        ctx.Request.Method,
		RequestAPI:    ctx.Request.RequestURI,
		RemoteAddr:    ctx.ClientIP(),
		Response:      decodeHandlerResponse(w.body.Bytes(), status),
		ExecutionTime: fmt.Sprintf("%vms", time.Since(start).Milliseconds()),
	}
	switch {
	case status < http.StatusBadRequest:
		log.Info(info)
	case status >= http.StatusInternalServerError:
		log.Error(info)
	default:
		log.Warn(info)
	}
}

func decodeHandlerResponse(body []byte, status int) *response {
	resp := response{ProtocolCode: status}
	// Binary bodies (QR codes) are not JSON; only the status is kept then.
	_ = json.Unmarshal(body, &resp)
	return &resp
}

var excludedHeaders = map[string]bool{
	"token":         true,
	"access-token":  true,
	"authorization": true,
	"cookie":        true,
}

func requestHeaderFilter(headers map[string][]string) map[string]string {
	filtered := make(map[string]string)
	for k, v := range headers {
		k = strings.ToLower(k)
		if excludedHeaders[k] {
			continue
		}
		filtered[k] = strings.Join(v, ";")
	}
	return filtered
}
