package request

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxBodySize caps how much of a request body is read looking for parameters.
const maxBodySize = 1 << 20

// FromHTTP extracts the known parameters from r. A non-empty URL query value
// wins; otherwise the value comes from the JSON body. A body that is not a
// JSON object contributes nothing, and non-string JSON values are ignored.
func FromHTTP(r *http.Request) (Params, error) {
	body, err := jsonBody(r)
	if err != nil {
		return nil, err
	}

	query := r.URL.Query()
	params := make(Params, len(ParamNames))

	for _, name := range ParamNames {
		if v := query.Get(name); v != "" {
			params[name] = v
			continue
		}

		if raw, ok := body[name]; ok {
			if s, isString := raw.(string); isString {
				params[name] = s
				continue
			}
			slog.Warn("ignoring non-string body parameter", "param", name)
		}

		if query.Has(name) {
			params[name] = ""
		}
	}

	return params, nil
}

// jsonBody decodes the request body as a JSON object. Only a failure to read
// the body is an error; undecodable content yields an empty map.
func jsonBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		slog.Debug("request body is not a JSON object", "error", err)
		return nil, nil
	}

	return obj, nil
}
