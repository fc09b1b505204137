package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	// ErrUnknownType is returned for a well-formed request of an unknown type.
	ErrUnknownType = errors.New("unknown request type")
	// ErrMalformed is returned for requests that cannot be decoded or fail validation.
	ErrMalformed = errors.New("malformed request")
)

var api = sonic.ConfigStd

// Encode marshals v as JSON.
func Encode(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Decode unmarshals JSON data into v.
func Decode(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// DecodeRequest parses and validates a WebSocket request.
func DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := Decode(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: missing field \"type\"", ErrMalformed)
	}
	switch *env.Type {
	case TypeExecute:
		return buildExecute(env.Code, env.Files, env.Timeout)
	case TypeRelease:
		return Release{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *env.Type)
	}
}

// EncodeRequest marshals a request into its wire form.
func EncodeRequest(r Request) ([]byte, error) {
	t := r.Type()
	env := envelope{Type: &t}
	switch req := r.(type) {
	case Execute:
		env.Code = &req.Code
		env.Files = req.Files
		if req.Timeout > 0 {
			env.Timeout = &req.Timeout
		}
	case Release:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, r)
	}
	return Encode(env)
}

// DecodeExecuteBody parses and validates the body of POST /execute.
func DecodeExecuteBody(data []byte) (Execute, error) {
	var body ExecuteBody
	if err := Decode(data, &body); err != nil {
		return Execute{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return buildExecute(body.Code, body.Files, body.Timeout)
}

// DecodeResponse parses a WebSocket response.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := Decode(data, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Status != StatusSuccess && resp.Status != StatusError {
		return Response{}, fmt.Errorf("%w: unexpected status %q", ErrMalformed, resp.Status)
	}
	return resp, nil
}

func buildExecute(code *string, files []string, timeout *int) (Execute, error) {
	if code == nil {
		return Execute{}, fmt.Errorf("%w: missing field \"code\"", ErrMalformed)
	}
	req := Execute{Code: *code, Files: files}
	if timeout != nil {
		if *timeout <= 0 {
			return Execute{}, fmt.Errorf("%w: timeout must be a positive number of seconds", ErrMalformed)
		}
		req.Timeout = *timeout
	}
	for i, f := range files {
		if f == "" {
			return Execute{}, fmt.Errorf("%w: files[%d] is empty", ErrMalformed, i)
		}
	}
	return req, nil
}
