package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeFacts(t *testing.T) {
	tests := []struct {
		name      string
		existing  map[string]string
		extracted map[string]string
		want      map[string]string
	}{
		{
			name:      "empty existing",
			extracted: map[string]string{"name": "John"},
			want:      map[string]string{"name": "John"},
		},
		{
			name:      "newer value wins per key",
			existing:  map[string]string{"name": "John", "location": "Boston"},
			extracted: map[string]string{"location": "San Francisco"},
			want:      map[string]string{"name": "John", "location": "San Francisco"},
		},
		{
			name:      "blank entries ignored",
			existing:  map[string]string{"name": "John"},
			extracted: map[string]string{"name": " ", "": "x", " pet ": " cat "},
			want:      map[string]string{"name": "John", "pet": "cat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeFacts(tt.existing, tt.extracted))
		})
	}
}

func TestMergeFacts_Idempotent(t *testing.T) {
	extracted := map[string]string{"name": "John", "occupation": "engineer"}
	once := MergeFacts(nil, extracted)
	twice := MergeFacts(once, extracted)
	assert.Equal(t, once, twice)
}

func TestMergeFacts_DoesNotMutateInputs(t *testing.T) {
	existing := map[string]string{"name": "John"}
	MergeFacts(existing, map[string]string{"name": "Jack"})
	assert.Equal(t, "John", existing["name"])
}
