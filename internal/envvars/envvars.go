package envvars

import (
	"maps"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
)

const (
	LocalMarker        = "AWS_SAM_LOCAL"
	MemorySize         = "AWS_LAMBDA_FUNCTION_MEMORY_SIZE"
	Timeout            = "AWS_LAMBDA_FUNCTION_TIMEOUT"
	Handler            = "AWS_LAMBDA_FUNCTION_HANDLER"
	Region             = "AWS_REGION"
	DefaultRegion      = "AWS_DEFAULT_REGION"
	AccessKeyID        = "AWS_ACCESS_KEY_ID"
	SecretAccessKey    = "AWS_SECRET_ACCESS_KEY"
	SessionToken       = "AWS_SESSION_TOKEN"
	EventBody          = "AWS_LAMBDA_EVENT_BODY"
	localMarkerEnabled = "true"
)

// AWS identity exposed to the emulated function. Empty fields take the
// corresponding [Defaults].
type Credentials struct {
	Region       string
	Key          string
	Secret       string
	SessionToken string // Omitted from the result when empty.
}

// Fallback identity used when a credential field is absent.
type Defaults struct {
	Region string
	Key    string
	Secret string
}

// Returns the standard fallback identity.
func StandardDefaults() Defaults {
	return Defaults{
		Region: "us-east-1",
		Key:    "defaultkey",
		Secret: "defaultsecret",
	}
}

// All inputs of a resolution.
type Input struct {
	Declared    map[string]any    // Variables declared by the function, with defaults.
	Shell       map[string]string // Values from the caller's shell.
	Overrides   map[string]any    // Explicit overrides, usually from an env-vars file.
	Credentials Credentials       // AWS identity.
	Memory      int               // Memory size in MB.
	Timeout     int               // Timeout in seconds.
	Handler     string            // Function handler.
	Defaults    *Defaults         // Fallback identity. Nil uses StandardDefaults.
}

// An immutable environment variable set.
type Variables struct {
	in        Input
	eventBody *string
}

// Creates a variable set. The input maps are copied.
func New(in Input) Variables {
	in.Declared = maps.Clone(in.Declared)
	in.Shell = maps.Clone(in.Shell)
	in.Overrides = maps.Clone(in.Overrides)
	if in.Defaults == nil {
		d := StandardDefaults()
		in.Defaults = &d
	} else {
		d := *in.Defaults
		in.Defaults = &d
	}
	return Variables{in: in}
}

// Resolves a variable set built from in.
func Resolve(in Input) map[string]string {
	return New(in).Resolve()
}

// Returns a copy of v that also carries the event body.
//
// The body is assigned directly on resolution and bypasses the precedence
// layers.
func (v Variables) WithEventBody(body string) Variables {
	v.eventBody = &body
	return v
}

// Computes the final mapping.
func (v Variables) Resolve() map[string]string {
	result := v.fixed()

	for name, value := range v.in.Declared {
		if override, ok := v.in.Overrides[name]; ok {
			value = override
		} else if shell, ok := v.in.Shell[name]; ok {
			value = shell
		}
		result[name] = Stringify(value)
	}

	if v.eventBody != nil {
		result[EventBody] = *v.eventBody
	}

	return result
}

// Returns the emulation variables that are always present.
func (v Variables) fixed() map[string]string {
	creds, defaults := v.in.Credentials, v.in.Defaults

	region := fallback(creds.Region, defaults.Region)
	vars := map[string]string{
		LocalMarker:     localMarkerEnabled,
		MemorySize:      strconv.Itoa(v.in.Memory),
		Timeout:         strconv.Itoa(v.in.Timeout),
		Handler:         v.in.Handler,
		Region:          region,
		DefaultRegion:   region,
		AccessKeyID:     fallback(creds.Key, defaults.Key),
		SecretAccessKey: fallback(creds.Secret, defaults.Secret),
	}

	if creds.SessionToken != "" {
		vars[SessionToken] = creds.SessionToken
	}

	return vars
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// Coerces a variable value to its string form.
//
// Booleans become "true" or "false", integers their decimal form, floats
// the shortest form that keeps a fraction or exponent ("1.0", "0.5",
// "1e+21"), and strings pass through unchanged. Nil and every other kind,
// including slices, maps, arrays and structs, become "".
func Stringify(value any) string {
	if value == nil {
		return ""
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return formatFloat(rv.Float(), 32)
	case reflect.Float64:
		return formatFloat(rv.Float(), 64)
	case reflect.String:
		return rv.String()
	default:
		return ""
	}
}

// Formats f the way template authors see numbers echoed back: exponent
// notation below 1e-4 and from 1e16 up, and a ".0" on integral values.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, bitSize)
	}

	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Returns the current process environment as a shell value layer.
func ShellEnv() map[string]string {
	return parseEnviron(os.Environ())
}

func parseEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = value
	}
	return env
}

// Reads the AWS identity from a shell value layer.
//
// AWS_REGION wins over AWS_DEFAULT_REGION. Missing fields stay empty so
// that resolution applies the defaults.
func CredentialsFromShell(shell map[string]string) Credentials {
	return Credentials{
		Region:       fallback(shell[Region], shell[DefaultRegion]),
		Key:          shell[AccessKeyID],
		Secret:       shell[SecretAccessKey],
		SessionToken: shell[SessionToken],
	}
}
