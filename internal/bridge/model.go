package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"moff.io/wallet-bridge/pkg/log"
)

// Methods the host calls on the browser shim.
const (
	methodInit        = "appkit_init"
	methodOpen        = "appkit_open"
	methodClose       = "appkit_close"
	methodSetProvider = "appkit_setOnRampProvider"
	methodOpenWindow  = "window_open"
)

// Notifications the browser shim sends without an id.
const (
	notifyState = "appkit_state"
	notifyFocus = "window_focus"
)

type jsonRpcRequest struct {
	Id      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newJSONRpcRequest(id int64, method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		Id:      id,
		JSONRpc: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func (e *jsonRpcRequest) Marshal() []byte {
	bytes, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return bytes
}

// RPCError is an error object returned by the browser shim.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("browser rpc error %d: %s", e.Code, e.Message)
}

func rpcErrorFrom(v gjson.Result) *RPCError {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if !v.IsObject() {
		return &RPCError{Code: -32603, Message: v.String()}
	}
	return &RPCError{Code: v.Get("code").Int(), Message: v.Get("message").String()}
}

type openParams struct {
	View string `json:"view,omitempty"`
}

type openWindowParams struct {
	URL    string `json:"url"`
	Target string `json:"target"`
}
