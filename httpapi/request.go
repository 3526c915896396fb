package httpapi

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"

	"github.com/nodermann/offlinecloud/apierr"
)

// queryParam retrieves a required query parameter. Its absence is
// MissingQueryParameter; an empty value is InvalidQueryParameter.
func queryParam(r *http.Request, name string) (string, error) {
	values := r.URL.Query()
	if !values.Has(name) {
		return "", apierr.MissingQueryParameter(name)
	}
	v := values.Get(name)
	if v == "" {
		return "", apierr.InvalidQueryParameter(name)
	}
	return v, nil
}

// jsonBody decodes the request body into a generic map, ready for
// jsonStringKey to pull individual keys from.
func jsonBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, apierr.Internal(errors.Wrap(err, "decode json body"))
	}
	return body, nil
}

// jsonStringKey pulls a required string key out of body. A missing key
// is MissingJSONKey; a present-but-non-string or empty value is
// InvalidJSONKey.
func jsonStringKey(body map[string]any, key string) (string, error) {
	v, ok := body[key]
	if !ok {
		return "", apierr.MissingJSONKey(key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", apierr.InvalidJSONKey(key)
	}
	return s, nil
}

// jsonPathKey reads "path" from the request's JSON body.
func jsonPathKey(r *http.Request) (string, error) {
	body, err := jsonBody(r)
	if err != nil {
		return "", err
	}
	return jsonStringKey(body, "path")
}

// jsonSrcDest reads "src" and "dest" from the request's JSON body.
func jsonSrcDest(r *http.Request) (src, dest string, err error) {
	body, err := jsonBody(r)
	if err != nil {
		return "", "", err
	}
	src, err = jsonStringKey(body, "src")
	if err != nil {
		return "", "", err
	}
	dest, err = jsonStringKey(body, "dest")
	if err != nil {
		return "", "", err
	}
	return src, dest, nil
}

// nextNamedPart reads the next multipart part and requires it to be
// named name. A missing part (end of stream) or a part under a
// different name is MissingMultipart.
func nextNamedPart(mr *multipart.Reader, name string) (*multipart.Part, error) {
	part, err := mr.NextPart()
	if err != nil {
		return nil, apierr.MissingMultipart(name)
	}
	if part.FormName() != name {
		return nil, apierr.MissingMultipart(name)
	}
	return part, nil
}

// readTextPart reads a multipart part fully as text. An empty value is
// InvalidMultipart.
func readTextPart(part *multipart.Part, name string) (string, error) {
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		n, err := part.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", apierr.Internal(errors.Wrap(err, "read multipart text part"))
		}
	}
	if len(buf) == 0 {
		return "", apierr.InvalidMultipart(name)
	}
	return string(buf), nil
}
