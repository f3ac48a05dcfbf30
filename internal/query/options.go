package query

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"mailctl/internal/api"
	"mailctl/internal/model"
)

// Params carries request settings that are not part of the payload.
type Params struct {
	// Query is appended to the request URL.
	Query url.Values
	// Quiet disables the global progress indicator for the batch.
	Quiet bool
}

// Options configures one Query call. Every field is optional.
type Options struct {
	Data         any
	Headers      map[string]string
	Method       string
	Params       Params
	Server       string
	StatusCode   map[int]func(model.NodeStatus)
	Success      func(statuses []model.NodeStatus, last *api.Response)
	Error        func(status model.NodeStatus, err error)
	Complete     func()
	ErrorMessage string
	ErrorOnceID  string
}

var optionKeys = []string{
	"complete", "data", "error", "errorMessage", "errorOnceId", "headers",
	"method", "params", "server", "statusCode", "success",
}

// OptionsFromMap builds Options from a loosely typed map, failing with
// ErrInvalidOptions on unknown keys or mistyped values.
func OptionsFromMap(m map[string]any) (Options, error) {
	var o Options
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		ok := true
		switch k {
		case "complete":
			o.Complete, ok = v.(func())
		case "data":
			o.Data = v
		case "error":
			o.Error, ok = v.(func(model.NodeStatus, error))
		case "errorMessage":
			o.ErrorMessage, ok = v.(string)
		case "errorOnceId":
			o.ErrorOnceID, ok = v.(string)
		case "headers":
			o.Headers, ok = v.(map[string]string)
		case "method":
			o.Method, ok = v.(string)
		case "params":
			switch p := v.(type) {
			case Params:
				o.Params = p
			case url.Values:
				o.Params.Query = p
			default:
				ok = false
			}
		case "server":
			o.Server, ok = v.(string)
		case "statusCode":
			o.StatusCode, ok = v.(map[int]func(model.NodeStatus))
		case "success":
			o.Success, ok = v.(func([]model.NodeStatus, *api.Response))
		default:
			return Options{}, fmt.Errorf("%w: unknown option %q (allowed: %s)", ErrInvalidOptions, k, strings.Join(optionKeys, ", "))
		}
		if !ok {
			return Options{}, fmt.Errorf("%w: option %q has type %T", ErrInvalidOptions, k, v)
		}
	}
	return o, nil
}

// payload is the encoded form of Options.Data shared by every node.
type payload struct {
	method      string
	body        []byte
	query       url.Values
	contentType string
}

func encode(o Options) (payload, error) {
	p := payload{method: strings.ToUpper(strings.TrimSpace(o.Method))}
	if p.method == "" {
		p.method = http.MethodGet
	}
	if strings.ContainsAny(p.method, " \t\r\n") {
		return payload{}, fmt.Errorf("%w: method %q", ErrInvalidOptions, o.Method)
	}

	p.query = url.Values{}
	for k, vs := range o.Params.Query {
		p.query[k] = append(p.query[k], vs...)
	}

	form := func(v url.Values) {
		if p.method == http.MethodGet || p.method == http.MethodHead {
			for k, vs := range v {
				p.query[k] = append(p.query[k], vs...)
			}
			return
		}
		p.body = []byte(v.Encode())
		p.contentType = "application/x-www-form-urlencoded; charset=UTF-8"
	}

	switch d := o.Data.(type) {
	case nil:
	case []byte:
		p.body = d
	case string:
		p.body = []byte(d)
	case url.Values:
		form(d)
	case map[string]string:
		v := url.Values{}
		for k, s := range d {
			v.Set(k, s)
		}
		form(v)
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return payload{}, fmt.Errorf("%w: data: %v", ErrInvalidOptions, err)
		}
		p.body = b
		p.contentType = "application/json"
	}
	return p, nil
}
