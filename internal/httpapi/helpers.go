package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"jobscout-engine/internal/domain"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		WriteError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, r.Method+" not allowed")
	}
}

// decodeJSON reads exactly one JSON object from the request body and rejects
// unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	if dec.More() {
		return errors.New("body must hold a single JSON object")
	}
	return nil
}

func validateRequest(v any) error {
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ie := &invalidError{fields: make([]string, 0, len(verrs))}
	for _, fe := range verrs {
		if fe.Param() != "" {
			ie.fields = append(ie.fields, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			ie.fields = append(ie.fields, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return ie
}

// queryFromValues builds a query from URL parameters: repeated or
// comma-separated keywords and sources, location, max_results, force_refresh
// and filter.<name>=value pairs.
func queryFromValues(v url.Values) (SearchRequest, error) {
	req := SearchRequest{
		Keywords: splitList(v["keywords"]),
		Sources:  splitList(v["sources"]),
		Location: v.Get("location"),
	}
	if s := v.Get("max_results"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("max_results: %w", err)
		}
		req.MaxResults = n
	}
	if s := v.Get("force_refresh"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return req, fmt.Errorf("force_refresh: %w", err)
		}
		req.ForceRefresh = b
	}
	for k, vals := range v {
		name, ok := strings.CutPrefix(k, "filter.")
		if !ok || name == "" || len(vals) == 0 {
			continue
		}
		if req.Filters == nil {
			req.Filters = map[string]string{}
		}
		req.Filters[name] = vals[0]
	}
	return req, nil
}

func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// writeSSE writes one server-sent event with a JSON payload.
func writeSSE(w io.Writer, event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func queryFields(q domain.Query) map[string]any {
	return map[string]any{
		"keywords": q.Keywords,
		"location": q.Location,
		"sources":  q.Sources,
	}
}
