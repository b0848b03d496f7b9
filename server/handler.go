package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
)

// Namespace is the prefix of every tx engine method
const Namespace = "txengine"

// unknownMethod labels the metrics of calls to methods that are not registered
const unknownMethod = "unknown"

var (
	httpRequestType = reflect.TypeOf(&http.Request{})
	rpcErrType      = reflect.TypeOf((*Error)(nil)).Elem()
)

// method is an exported Endpoints method reachable as <Namespace>_<name>
type method struct {
	name string
	fn   reflect.Value
	// args are the positional RPC arguments, without the receiver and the http request
	args []reflect.Type
	// withRequest is set when the first argument after the receiver is the *http.Request
	withRequest bool
	// required is the number of leading args a call must carry. Trailing pointer args are optional
	required int
}

type handleRequest struct {
	Request
	HttpRequest *http.Request
}

// Handler dispatches tx engine RPC requests to the Endpoints methods
type Handler struct {
	receiver reflect.Value
	methods  map[string]*method
}

// newHandler registers every exported method of endpoints. It panics on a method that cannot
// be served through RPC.
func newHandler(endpoints interface{}) *Handler {
	rt := reflect.TypeOf(endpoints)
	if rt.Kind() != reflect.Ptr {
		panic("endpoints must be a pointer to struct")
	}

	methods := make(map[string]*method, rt.NumMethod())
	for i := 0; i < rt.NumMethod(); i++ {
		mv := rt.Method(i)
		if mv.PkgPath != "" {
			continue
		}
		m, err := newMethod(lowerCaseFirst(mv.Name), mv.Func)
		if err != nil {
			panic(fmt.Sprintf("invalid function '%s_%s', error: %v", Namespace, lowerCaseFirst(mv.Name), err))
		}
		methods[m.name] = m
	}

	return &Handler{receiver: reflect.ValueOf(endpoints), methods: methods}
}

func newMethod(name string, fn reflect.Value) (*method, error) {
	ft := fn.Type()
	if ft.NumOut() != 2 {
		return nil, fmt.Errorf("unexpected number of output arguments, actual: %d, expected: 2", ft.NumOut())
	}
	if !ft.Out(1).Implements(rpcErrType) {
		return nil, fmt.Errorf("unexpected type for the second return value, actual: '%s', expected '%s'", ft.Out(1), rpcErrType)
	}

	m := &method{name: name, fn: fn}
	// In(0) is the receiver
	first := 1
	if ft.NumIn() > 1 && ft.In(1) == httpRequestType {
		m.withRequest = true
		first = 2
	}
	for i := first; i < ft.NumIn(); i++ {
		m.args = append(m.args, ft.In(i))
	}

	m.required = len(m.args)
	for m.required > 0 && m.args[m.required-1].Kind() == reflect.Ptr {
		m.required--
	}
	return m, nil
}

// Handle serves one RPC request
func (h *Handler) Handle(req handleRequest) Response {
	log.Debugf("request method: %s, id: %v, params: %s", req.Method, req.ID, string(req.Params))
	start := time.Now()

	label := unknownMethod
	m, rpcErr := h.lookup(req.Method)
	var result []byte
	if rpcErr == nil {
		label = req.Method
		result, rpcErr = h.call(m, req)
	}

	code := 0
	if rpcErr != nil {
		code = rpcErr.ErrorCode()
		log.Debugf("failed call, error: (%d) %s, params: %s", code, rpcErr.Error(), string(req.Params))
	}
	metrics.RPCRequest(label, code, time.Since(start))

	return NewResponse(req.Request, result, rpcErr)
}

func (h *Handler) lookup(name string) (*method, Error) {
	namespace, funcName, found := strings.Cut(name, "_")
	if found && namespace == Namespace {
		if m, ok := h.methods[funcName]; ok {
			return m, nil
		}
	}
	log.Debugf("function '%s' not found", name)
	return nil, NewServerError(NotFoundErrorCode, "the function %s does not exist or is not available", name)
}

func (h *Handler) call(m *method, req handleRequest) ([]byte, Error) {
	args, rpcErr := m.decodeArgs(req.Params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, h.receiver)
	if m.withRequest {
		in = append(in, reflect.ValueOf(req.HttpRequest))
	}
	in = append(in, args...)

	out := m.fn.Call(in)
	if rpcErr := toError(out[1]); rpcErr != nil {
		return nil, rpcErr
	}

	res := out[0].Interface()
	if res == nil {
		return nil, nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		log.Errorf("error encoding the result of %s, error: %v", req.Method, err)
		return nil, NewServerError(InternalErrorCode, internalErrorMessage)
	}
	return data, nil
}

// decodeArgs decodes the positional params of a call. Missing optional args are left nil.
func (m *method) decodeArgs(params json.RawMessage) ([]reflect.Value, Error) {
	var raw []json.RawMessage
	if trimmed := bytes.TrimSpace(params); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, NewServerError(InvalidParamsErrorCode, "params must be an array")
		}
	}

	if len(raw) > len(m.args) {
		return nil, NewServerError(InvalidParamsErrorCode, "too many arguments, want at most %d", len(m.args))
	}
	if len(raw) < m.required {
		return nil, NewServerError(InvalidParamsErrorCode, "missing value for required argument %d", len(raw))
	}

	values := make([]reflect.Value, len(m.args))
	for i, t := range m.args {
		v := reflect.New(t)
		if i < len(raw) {
			if err := json.Unmarshal(raw[i], v.Interface()); err != nil {
				return nil, NewServerError(InvalidParamsErrorCode, "invalid argument %d: %v", i, err)
			}
		}
		values[i] = v.Elem()
	}
	return values, nil
}

func toError(v reflect.Value) Error {
	if v.IsNil() {
		return nil
	}
	if err, ok := v.Interface().(*ServerError); ok {
		return err
	}
	return NewServerError(InternalErrorCode, internalErrorMessage)
}

func lowerCaseFirst(str string) string {
	for i, v := range str {
		return string(unicode.ToLower(v)) + str[i+1:]
	}
	return ""
}
