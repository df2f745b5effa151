package image

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		runtime string
		want    string
	}{
		{runtime: "myruntime", want: "lambci/lambda:build-myruntime"},
		{runtime: "nodejs10.x", want: "amazon/lambda-build-node10.x"},
		{runtime: "python3.7", want: "lambci/lambda:build-python3.7"},
		{runtime: "java8", want: "lambci/lambda:build-java8"},
	}

	r := Default()
	for _, tt := range tests {
		t.Run(tt.runtime, func(t *testing.T) {
			got, err := r.Resolve(tt.runtime)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tt.runtime, got, tt.want)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := Default()
	a, _ := r.Resolve("ruby2.5")
	b, _ := r.Resolve("ruby2.5")
	if a != b {
		t.Fatalf("Resolve is not deterministic: %q != %q", a, b)
	}
}

func TestResolveUnsupported(t *testing.T) {
	tests := []struct {
		name    string
		runtime string
	}{
		{name: "empty", runtime: ""},
		{name: "blank", runtime: "   "},
		{name: "invalid tag", runtime: "has space"},
		{name: "uppercase path", runtime: "Python:3"},
	}

	r := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.runtime)
			if !errors.Is(err, ErrUnsupportedRuntime) {
				t.Fatalf("err = %v, want ErrUnsupportedRuntime", err)
			}
		})
	}
}

func TestDefaultExtraEntriesShadowCurated(t *testing.T) {
	r := Default(Entry{Runtime: "nodejs10.x", Image: "example.com/node:10"})

	got, err := r.Resolve("nodejs10.x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "example.com/node:10" {
		t.Fatalf("Resolve = %q, want example.com/node:10", got)
	}
}

func TestNewCustomFallback(t *testing.T) {
	r := New(nil, func(runtime string) string { return "registry.local/build:" + runtime })

	got, err := r.Resolve("go1.x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "registry.local/build:go1.x" {
		t.Fatalf("Resolve = %q, want registry.local/build:go1.x", got)
	}
}

func TestNewCopiesEntries(t *testing.T) {
	entries := []Entry{{Runtime: "a", Image: "img/a"}}
	r := New(entries, nil)
	entries[0].Image = "mutated"

	got, _ := r.Resolve("a")
	if got != "img/a" {
		t.Fatalf("Resolve = %q, want img/a", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{ref: "lambci/lambda:build-go1.x", want: "docker.io/lambci/lambda:build-go1.x"},
		{ref: "amazon/lambda-build-node10.x", want: "docker.io/amazon/lambda-build-node10.x:latest"},
		{ref: "busybox", want: "docker.io/library/busybox:latest"},
		{ref: "example.com/team/img:1.0", want: "example.com/team/img:1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := Normalize(tt.ref)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestNormalizeInvalid(t *testing.T) {
	_, err := Normalize("NOT VALID")
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("err = %v, want ErrInvalidReference", err)
	}
}
