package builtin

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func is a template function. Arguments arrive as trimmed strings.
type Func func(args []string) (any, error)

// Registry maps function names to implementations.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("uuid", funcUUID)
	r.Register("now", funcNow)
	r.Register("timestamp", funcTimestamp)
	r.Register("randomInt", funcRandomInt)
	r.Register("randomString", funcRandomString)
	r.Register("base64", funcBase64)
	return r
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

var callPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates a function-call expression such as "randomInt(1, 10)".
// The boolean is false when expr is not a call or names an unknown
// function.
func (r *Registry) Call(expr string) (any, bool, error) {
	matches := callPattern.FindStringSubmatch(expr)
	if matches == nil {
		return nil, false, nil
	}
	fn, ok := r.funcs[matches[1]]
	if !ok {
		return nil, false, nil
	}
	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}
	v, err := fn(args)
	return v, true, err
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}

func funcUUID(_ []string) (any, error) {
	return uuid.New().String(), nil
}

func funcNow(_ []string) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func funcTimestamp(_ []string) (any, error) {
	return time.Now().Unix(), nil
}

func funcRandomInt(args []string) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("randomInt wants 2 arguments, got %d", len(args))
	}
	lo, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("randomInt min %q: %w", args[0], err)
	}
	hi, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("randomInt max %q: %w", args[1], err)
	}
	if hi < lo {
		return nil, fmt.Errorf("randomInt range %d..%d is empty", lo, hi)
	}
	return rand.Intn(hi-lo+1) + lo, nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func funcRandomString(args []string) (any, error) {
	length := 16
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("randomString length %q: %w", args[0], err)
		}
		length = v
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(b), nil
}

func funcBase64(args []string) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("base64 wants 1 argument, got %d", len(args))
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0])), nil
}
