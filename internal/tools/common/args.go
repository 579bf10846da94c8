package common

import (
	"fmt"

	"github.com/hoaboard/treasurer/internal/payhoa"
)

// GetAccountFromArgs extracts the bank account id from request arguments.
// Tools that operate on a single account take it as "accountId"; the
// empty string means the tool was called without one.
func GetAccountFromArgs(args map[string]interface{}) string {
	if account, ok := args["accountId"].(string); ok {
		return account
	}
	return ""
}

// StringArg returns the named string argument, or "" when absent or not
// a string.
func StringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// IntArg returns the named numeric argument as an int, or def when the
// argument is absent. JSON numbers arrive as float64.
func IntArg(args map[string]interface{}, name string, def int) int {
	if v, ok := args[name].(float64); ok {
		return int(v)
	}
	return def
}

// BoolArg returns the named boolean argument. ok is false when the
// argument is absent, which filters treat as "don't filter".
func BoolArg(args map[string]interface{}, name string) (value, ok bool) {
	value, ok = args[name].(bool)
	return value, ok
}

// DateArg parses the named argument as a YYYY-MM-DD date. An absent or
// empty argument yields the zero Date, which the query layer treats as
// an open bound.
func DateArg(args map[string]interface{}, name string) (payhoa.Date, error) {
	s, ok := args[name].(string)
	if !ok || s == "" {
		return payhoa.Date{}, nil
	}
	d, err := payhoa.ParseDate(s)
	if err != nil {
		return payhoa.Date{}, fmt.Errorf("%s: %v", name, err)
	}
	return d, nil
}

// CentsArg reads a monetary argument. JSON numbers are integer cents;
// strings are exact dollar amounts such as "150" or "-$2.00". ok is
// false when the argument is absent.
func CentsArg(args map[string]interface{}, name string) (amount payhoa.Cents, ok bool, err error) {
	v, present := args[name]
	if !present || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		amount = payhoa.Cents(n)
		if float64(amount) != n {
			return 0, true, fmt.Errorf("%s must be whole cents when numeric; pass a dollar string for dollar amounts", name)
		}
		return amount, true, nil
	case string:
		amount, err = payhoa.ParseDollars(n)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %v", name, err)
		}
		return amount, true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number of cents or a dollar string", name)
	}
}
