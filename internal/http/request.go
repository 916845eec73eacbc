package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"expenses/internal/core"
)

const maxBodyBytes = 1 << 20

// errMalformedBody is returned when the payload is not a JSON object.
var errMalformedBody = errors.New("malformed JSON body")

// fieldOrder fixes the order in which per-field problems are reported.
var fieldOrder = map[string]int{"amount": 0, "category": 1, "description": 2, "date": 3}

// decodeExpenseInput reads the JSON body of a create or update request.
//
// Problems the decoder can see (missing amount, wrong JSON types, unparseable
// dates) are merged with the domain checks of ExpenseInput.Validate so the
// caller gets every problem in one response. At most one problem is reported
// per field.
func decodeExpenseInput(w http.ResponseWriter, r *http.Request, now time.Time) (core.ExpenseInput, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return core.ExpenseInput{}, err
	}

	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return core.ExpenseInput{}, errMalformedBody
	}

	var (
		in   core.ExpenseInput
		errs core.ValidationErrors
	)

	switch v, ok := present(raw, "amount"); {
	case !ok:
		errs = append(errs, core.ValidationError{Field: "amount", Message: "Amount is required"})
	default:
		if err := json.Unmarshal(v, &in.Amount); err != nil || in.Amount.Validate() != nil {
			errs = append(errs, core.ValidationError{Field: "amount", Message: "Amount must be a positive number"})
		}
	}

	if v, ok := present(raw, "category"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = string(v)
		}
		in.Category = core.Category(s)
	}

	if v, ok := present(raw, "description"); ok {
		if err := json.Unmarshal(v, &in.Description); err != nil {
			errs = append(errs, core.ValidationError{Field: "description", Message: "Description must be a string"})
		}
	}

	if v, ok := present(raw, "date"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			errs = append(errs, core.ValidationError{Field: "date", Message: "Date must be a valid ISO 8601 date (YYYY-MM-DD)"})
		} else if d, err := core.ParseISODate(s); err != nil {
			errs = append(errs, core.ValidationError{Field: "date", Message: "Date must be a valid ISO 8601 date (YYYY-MM-DD)"})
		} else {
			in.Date = d
		}
	}

	in = in.Normalize()
	if len(errs) == 0 {
		return in, nil
	}

	var domain core.ValidationErrors
	if err := in.Validate(now); err != nil {
		errors.As(err, &domain)
	}
	return in, mergeFieldErrors(errs, domain)
}

// present returns the raw value of key unless it is absent, null or "".
func present(raw map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	switch strings.TrimSpace(string(v)) {
	case "null", `""`:
		return nil, false
	}
	return v, true
}

// mergeFieldErrors keeps the first problem per field, preferring decode errors.
func mergeFieldErrors(decode, domain core.ValidationErrors) core.ValidationErrors {
	seen := make(map[string]bool)
	var out core.ValidationErrors
	for _, list := range []core.ValidationErrors{decode, domain} {
		for _, e := range list {
			if seen[e.Field] {
				continue
			}
			seen[e.Field] = true
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fieldOrder[out[i].Field] < fieldOrder[out[j].Field]
	})
	return out
}

// combineValidation joins field problems from several parsers. Any other
// error wins outright.
func combineValidation(errs ...error) error {
	var out core.ValidationErrors
	for _, err := range errs {
		if err == nil {
			continue
		}
		var verrs core.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		out = append(out, verrs...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseExpenseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, core.ValidationErrors{{Field: "id", Message: "Invalid expense ID format"}}
	}
	return id, nil
}

// parseDateParam reads an optional ISO 8601 date from the query string.
func parseDateParam(q url.Values, key, label string) (core.Date, *core.ValidationError) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseISODate(s)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: key, Message: label + " must be a valid ISO 8601 date"}
	}
	return d, nil
}

// parseFilter reads category, startDate and endDate. Empty values impose no constraint.
func parseFilter(q url.Values) (core.Filter, error) {
	var errs core.ValidationErrors
	f := core.Filter{Category: core.Category(strings.TrimSpace(q.Get("category")))}

	if f.Category != "" && !f.Category.Valid() {
		errs = append(errs, core.ValidationError{
			Field:   "category",
			Message: "Category must be one of: " + strings.Join(core.CategoryNames(), ", "),
		})
	}

	var verr *core.ValidationError
	if f.StartDate, verr = parseDateParam(q, "startDate", "Start date"); verr != nil {
		errs = append(errs, *verr)
	}
	if f.EndDate, verr = parseDateParam(q, "endDate", "End date"); verr != nil {
		errs = append(errs, *verr)
	}

	if len(errs) > 0 {
		return core.Filter{}, errs
	}
	return f, nil
}

// parseExportRange requires both bounds. Ordering is checked by the service.
func parseExportRange(q url.Values) (core.Date, core.Date, error) {
	var errs core.ValidationErrors
	required := func(key, label string) core.Date {
		if strings.TrimSpace(q.Get(key)) == "" {
			errs = append(errs, core.ValidationError{Field: key, Message: label + " is required"})
			return core.Date{}
		}
		d, verr := parseDateParam(q, key, label)
		if verr != nil {
			errs = append(errs, *verr)
		}
		return d
	}

	start := required("startDate", "Start date")
	end := required("endDate", "End date")
	if len(errs) > 0 {
		return core.Date{}, core.Date{}, errs
	}
	return start, end, nil
}

// parseMonthParams reads year and month, defaulting each to the current one.
func parseMonthParams(q url.Values, now time.Time) (int, int, error) {
	var errs core.ValidationErrors
	year, month := now.Year(), int(now.Month())

	if y, ok, err := intParam(q, "year", 2000, 2100); err != nil {
		errs = append(errs, core.ValidationError{Field: "year", Message: "Year must be between 2000 and 2100"})
	} else if ok {
		year = y
	}
	if m, ok, err := intParam(q, "month", 1, 12); err != nil {
		errs = append(errs, core.ValidationError{Field: "month", Message: "Month must be between 1 and 12"})
	} else if ok {
		month = m
	}

	if len(errs) > 0 {
		return 0, 0, errs
	}
	return year, month, nil
}

func intParam(q url.Values, key string, min, max int) (int, bool, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	if n < min || n > max {
		return 0, false, fmt.Errorf("%s %d out of range [%d, %d]", key, n, min, max)
	}
	return n, true, nil
}
