package entities

import "testing"

func TestResource_Validate(t *testing.T) {
	if err := (&Resource{ID: "doc1", Type: "file"}).Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
	if err := (&Resource{Type: "file"}).Validate(); err == nil {
		t.Error("Validate() without ID = nil, want error")
	}
	var missing *Resource
	if err := missing.Validate(); err == nil {
		t.Error("Validate() on nil resource = nil, want error")
	}
}

func TestTypeRegistry_WithSubtypes(t *testing.T) {
	registry := NewTypeRegistry()
	registry.RegisterSubtype("resource", "file")
	registry.RegisterSubtype("resource", "image")
	registry.RegisterSubtype("file", "scanned-file")

	tests := []struct {
		name     string
		typeName string
		want     []string
	}{
		{name: "root expands transitively", typeName: "resource", want: []string{"resource", "file", "image", "scanned-file"}},
		{name: "mid-level type", typeName: "file", want: []string{"file", "scanned-file"}},
		{name: "leaf type", typeName: "image", want: []string{"image"}},
		{name: "unregistered type", typeName: "folder", want: []string{"folder"}},
		{name: "empty means no restriction", typeName: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := registry.WithSubtypes(tt.typeName)
			if len(got) != len(tt.want) {
				t.Fatalf("WithSubtypes(%q) = %v, want %v", tt.typeName, got, tt.want)
			}
			seen := make(map[string]bool, len(got))
			for _, name := range got {
				seen[name] = true
			}
			for _, w := range tt.want {
				if !seen[w] {
					t.Errorf("WithSubtypes(%q) missing %s", tt.typeName, w)
				}
			}
		})
	}
}

func TestTypeRegistry_NilReceiver(t *testing.T) {
	var registry *TypeRegistry
	got := registry.WithSubtypes("file")
	if len(got) != 1 || got[0] != "file" {
		t.Errorf("WithSubtypes() on nil registry = %v, want [file]", got)
	}
}

func TestTypeRegistry_CycleSafe(t *testing.T) {
	registry := NewTypeRegistry()
	registry.RegisterSubtype("a", "b")
	registry.RegisterSubtype("b", "a")

	got := registry.WithSubtypes("a")
	if len(got) != 2 {
		t.Errorf("WithSubtypes(a) = %v, want exactly a and b", got)
	}
}
